// Package promptutil contains terminal prompt helpers used by destructive
// agent commands, such as clearing the databases.
package promptutil

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var errIncorrectPhrase = errors.New("input does not match wanted phrase")

// ValidatePrompt requests the user for text and expects the user to fulfill
// the provided validation function.
func ValidatePrompt(r io.Reader, promptText string, validateFunc func(string) error) (string, error) {
	var responseValid bool
	var response string
	for !responseValid {
		fmt.Printf("%s:\n", promptText)
		scanner := bufio.NewScanner(r)
		if ok := scanner.Scan(); ok {
			item := scanner.Text()
			response = strings.TrimRight(item, "\r\n")
			if err := validateFunc(response); err != nil {
				fmt.Printf("Entry not valid: %s\n", err.Error())
			} else {
				responseValid = true
			}
		} else {
			return "", errors.New("could not scan text input")
		}
	}
	return response, nil
}

// DefaultAndValidatePrompt prompts the user for any text and expects it to
// fulfill a validation function. If nothing is entered the default value is
// returned.
func DefaultAndValidatePrompt(promptText, defaultValue string, validateFunc func(string) error) (string, error) {
	var responseValid bool
	var response string
	for !responseValid {
		fmt.Printf("%s (default: %s):\n", promptText, defaultValue)
		scanner := bufio.NewScanner(os.Stdin)
		if ok := scanner.Scan(); ok {
			item := scanner.Text()
			response = strings.TrimRight(item, "\r\n")
			if response == "" {
				return defaultValue, nil
			}
			if err := validateFunc(response); err != nil {
				return "", err
			}
			responseValid = true
		} else {
			return "", errors.New("could not scan text input")
		}
	}
	return response, nil
}

// ValidateYesOrNo ensures the user input either Y, y or N, n.
func ValidateYesOrNo(input string) error {
	downcase := strings.ToLower(input)
	if downcase != "y" && downcase != "n" {
		return errors.New("please enter y or n")
	}
	return nil
}

// ValidatePhrase checks whether the user input is equal to the wanted phrase,
// ignoring surrounding whitespace. The verification is case sensitive.
func ValidatePhrase(input, wantedPhrase string) error {
	if strings.TrimSpace(input) != wantedPhrase {
		return errIncorrectPhrase
	}
	return nil
}

// ValidateNumber makes sure the entered text is a valid number.
func ValidateNumber(input string) error {
	_, err := strconv.Atoi(input)
	return err
}
