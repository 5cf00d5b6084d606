package contracts

// Minimal ABI fragments covering the contract surface the agent uses.
// Shapes follow the deployed protocol contracts; anything the agent never
// calls is left out.

const stakingABI = `[
	{"inputs":[{"name":"_indexer","type":"address"},{"name":"_subgraphDeploymentID","type":"bytes32"},{"name":"_tokens","type":"uint256"},{"name":"_allocationID","type":"address"},{"name":"_metadata","type":"bytes32"},{"name":"_proof","type":"bytes"}],"name":"allocateFrom","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"_allocationID","type":"address"},{"name":"_poi","type":"bytes32"}],"name":"closeAllocation","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"_allocationID","type":"address[]"},{"name":"_restake","type":"bool"}],"name":"claimMany","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"_allocationID","type":"address"}],"name":"getAllocationState","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"_allocationID","type":"address"}],"name":"getAllocation","outputs":[{"components":[{"name":"indexer","type":"address"},{"name":"subgraphDeploymentID","type":"bytes32"},{"name":"tokens","type":"uint256"},{"name":"createdAtEpoch","type":"uint256"},{"name":"closedAtEpoch","type":"uint256"},{"name":"collectedFees","type":"uint256"},{"name":"effectiveAllocation","type":"uint256"},{"name":"accRewardsPerAllocatedToken","type":"uint256"}],"name":"","type":"tuple"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"_indexer","type":"address"}],"name":"getIndexerCapacity","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"_indexer","type":"address"}],"name":"getIndexerStakedTokens","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"_operator","type":"address"},{"name":"_indexer","type":"address"}],"name":"isOperator","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}
]`

const epochManagerABI = `[
	{"inputs":[],"name":"currentEpoch","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"currentEpochBlock","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const serviceRegistryABI = `[
	{"inputs":[{"name":"_url","type":"string"},{"name":"_geohash","type":"string"}],"name":"register","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"_indexer","type":"address"}],"name":"isRegistered","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}
]`

const rewardsManagerABI = `[
	{"inputs":[{"name":"_allocationID","type":"address"}],"name":"getRewards","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const controllerABI = `[
	{"inputs":[],"name":"paused","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}
]`
