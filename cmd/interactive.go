package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"afdata/util"
)

// maxPromptAttempts bounds re-prompting so a closed or scripted stdin cannot loop forever
const maxPromptAttempts = 3

// promptString asks for one line of input. It returns defaultValue on an empty answer
// and an error when a required answer never arrives.
func promptString(reader *bufio.Reader, out io.Writer, prompt string, required bool, defaultValue string) (string, error) {
	for attempt := 0; attempt < maxPromptAttempts; attempt++ {
		switch {
		case defaultValue != "":
			fmt.Fprintf(out, "%s [%s]: ", prompt, defaultValue)
		case required:
			fmt.Fprintf(out, "%s (required): ", prompt)
		default:
			fmt.Fprintf(out, "%s: ", prompt)
		}

		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if err != nil && (!errors.Is(err, io.EOF) || input == "") {
			if defaultValue != "" || !required {
				return defaultValue, nil
			}
			return "", fmt.Errorf("no input for %s: %w", strings.ToLower(prompt), err)
		}

		if input == "" {
			if defaultValue != "" || !required {
				return defaultValue, nil
			}
			errorColor.Fprintln(out, "This field is required")
			continue
		}
		return input, nil
	}
	return "", fmt.Errorf("no value given for %s", strings.ToLower(prompt))
}

// promptRunTag asks for the tag that names a run's output files until a usable one is given
func promptRunTag(in io.Reader, out io.Writer) (string, error) {
	reader := bufio.NewReader(in)
	for attempt := 0; attempt < maxPromptAttempts; attempt++ {
		tag, err := promptString(reader, out, "Run tag", true, "")
		if err != nil {
			return "", err
		}
		if err := util.ValidateRunTag(tag); err != nil {
			errorColor.Fprintf(out, "Invalid run tag: %v\n", err)
			continue
		}
		return tag, nil
	}
	return "", errors.New("no valid run tag given")
}
