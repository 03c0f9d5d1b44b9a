package support

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// commandTimeout bounds every CLI invocation of a scenario.
const commandTimeout = 30 * time.Second

// iRunCommand executes a command inside the scenario directory and stores
// the result. Stdout and stderr are kept apart so structured output can be
// parsed without the log lines.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteCommandVariables(command)

	testCtx.LastCommand = command
	testCtx.LastStartTime = time.Now()

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}
	if parts[0] == "tslatency" {
		if bin := os.Getenv("TSLATENCY_BIN"); bin != "" {
			parts[0] = bin
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = testCtx.TempDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	testCtx.LastOutput = stdout.String()
	testCtx.LastStderr = stderr.String()
	testCtx.LastError = err
	testCtx.LastDuration = time.Since(testCtx.LastStartTime)

	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			testCtx.LastExitCode = exitError.ExitCode()
		} else {
			testCtx.LastExitCode = -1
		}
	} else {
		testCtx.LastExitCode = 0
	}

	return nil
}

// iRunCommandSuccessfully is iRunCommand followed by a success check, for
// setup steps.
func (testCtx *TestContext) iRunCommandSuccessfully(command string) error {
	if err := testCtx.iRunCommand(command); err != nil {
		return err
	}
	return testCtx.theCommandShouldSucceed()
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s\nStderr: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastOutput, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	if !strings.Contains(testCtx.LastOutput, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	if strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output unexpectedly contains '%s'\nActual output: %s", text, testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldHaveLines checks the number of non-empty stdout lines.
func (testCtx *TestContext) theOutputShouldHaveLines(n int) error {
	lines := outputLines(testCtx.LastOutput)
	if len(lines) != n {
		return fmt.Errorf("expected %d output lines, got %d\nActual output: %s", n, len(lines), testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	if _, err := decodeJSON([]byte(testCtx.LastOutput)); err != nil {
		return fmt.Errorf("output is not valid JSON: %w\nOutput: %s", err, testCtx.LastOutput)
	}
	return nil
}

// everyOutputLineShouldBeValidJSON checks JSON lines output.
func (testCtx *TestContext) everyOutputLineShouldBeValidJSON() error {
	lines := outputLines(testCtx.LastOutput)
	if len(lines) == 0 {
		return errors.New("no output lines")
	}
	for i, line := range lines {
		if _, err := decodeJSON([]byte(line)); err != nil {
			return fmt.Errorf("line %d is not valid JSON: %w\nLine: %s", i+1, err, line)
		}
	}
	return nil
}

func (testCtx *TestContext) theJSONShouldContain(field string) error {
	doc, err := testCtx.firstJSONDocument()
	if err != nil {
		return err
	}
	_, err = lookupField(doc, field)
	return err
}

func (testCtx *TestContext) theJSONShouldNotContain(field string) error {
	doc, err := testCtx.firstJSONDocument()
	if err != nil {
		return err
	}
	if _, err := lookupField(doc, field); err == nil {
		return fmt.Errorf("field '%s' unexpectedly present\nOutput: %s", field, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theJSONFieldShouldBe(field, expected string) error {
	doc, err := testCtx.firstJSONDocument()
	if err != nil {
		return err
	}
	return fieldEquals(doc, field, expected)
}

// theJSONFieldOfLineShouldBe checks a field of the n-th JSON line.
func (testCtx *TestContext) theJSONFieldOfLineShouldBe(field string, n int, expected string) error {
	lines := outputLines(testCtx.LastOutput)
	if n < 1 || n > len(lines) {
		return fmt.Errorf("output has %d lines, no line %d", len(lines), n)
	}
	doc, err := decodeJSON([]byte(lines[n-1]))
	if err != nil {
		return fmt.Errorf("line %d is not valid JSON: %w", n, err)
	}
	return fieldEquals(doc, field, expected)
}

// firstJSONDocument parses the whole output, falling back to its first line
// for JSON lines output.
func (testCtx *TestContext) firstJSONDocument() (any, error) {
	if doc, err := decodeJSON([]byte(testCtx.LastOutput)); err == nil {
		return doc, nil
	}
	lines := outputLines(testCtx.LastOutput)
	if len(lines) == 0 {
		return nil, errors.New("no JSON found in output")
	}
	doc, err := decodeJSON([]byte(lines[0]))
	if err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w\nOutput: %s", err, testCtx.LastOutput)
	}
	return doc, nil
}

// theErrorShouldMention verifies the error message contains specific text.
func (testCtx *TestContext) theErrorShouldMention(errorText string) error {
	if testCtx.LastError == nil && testCtx.LastExitCode == 0 {
		return fmt.Errorf("no error occurred, but expected error containing '%s'", errorText)
	}

	fullErrorText := testCtx.LastOutput + " " + testCtx.LastStderr
	if testCtx.LastError != nil {
		fullErrorText += " " + testCtx.LastError.Error()
	}

	if !strings.Contains(strings.ToLower(fullErrorText), strings.ToLower(errorText)) {
		return fmt.Errorf("error does not contain '%s'\nActual error: %s", errorText, fullErrorText)
	}
	return nil
}

// theLogsShouldContain checks the structured log output on stderr.
func (testCtx *TestContext) theLogsShouldContain(text string) error {
	if !strings.Contains(testCtx.LastStderr, text) {
		return fmt.Errorf("logs do not contain '%s'\nActual logs: %s", text, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldExist(filename string) error {
	fullPath := testCtx.Path(filename)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", fullPath)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldContain(filename, expectedContent string) error {
	if err := testCtx.theFileShouldExist(filename); err != nil {
		return err
	}

	fullPath := testCtx.Path(filename)
	content, err := os.ReadFile(fullPath) //nolint:gosec // G304: Test file reading with controlled path
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", fullPath, err)
	}

	if !strings.Contains(string(content), expectedContent) {
		return fmt.Errorf("file %s does not contain '%s'\nActual content: %s",
			filename, expectedContent, string(content))
	}
	return nil
}

// aFileWithContent writes a doc string into the scenario directory.
func (testCtx *TestContext) aFileWithContent(filename string, content *godog.DocString) error {
	fullPath := testCtx.Path(filename)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", fullPath, err)
	}
	if err := os.WriteFile(fullPath, []byte(content.Content), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", fullPath, err)
	}
	testCtx.TrackFile(fullPath)
	return nil
}

func (testCtx *TestContext) theEnvironmentVariableIsSetTo(name, value string) error {
	testCtx.AddEnvVar(name, value)
	return nil
}

// substituteCommandVariables replaces variables in command strings.
func (testCtx *TestContext) substituteCommandVariables(command string) string {
	return strings.ReplaceAll(command, "{tmp}", testCtx.TempDir)
}

func outputLines(output string) []string {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// decodeJSON keeps numbers as json.Number so that nanosecond values compare
// exactly.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON document")
	}
	return v, nil
}

// lookupField follows a dotted path through objects and arrays, e.g.
// "summary.ok" or "stages.0.name".
func lookupField(doc any, field string) (any, error) {
	current := doc
	parts := strings.Split(field, ".")
	for i, part := range parts {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return nil, fmt.Errorf("field '%s' not found in JSON", strings.Join(parts[:i+1], "."))
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid index '%s' for array of %d", part, len(v))
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot navigate deeper into non-object field '%s'", strings.Join(parts[:i], "."))
		}
	}
	return current, nil
}

func fieldEquals(doc any, field, expected string) error {
	v, err := lookupField(doc, field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != expected {
		return fmt.Errorf("field '%s' is %q, want %q", field, got, expected)
	}
	return nil
}

// RegisterCommonSteps registers the CLI steps shared by all features.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	testCtx.registerCommandSteps(sc)
	testCtx.registerOutputSteps(sc)
	testCtx.registerFileSteps(sc)
}

func (testCtx *TestContext) registerCommandSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^I have run "([^"]*)"$`, testCtx.iRunCommandSuccessfully)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, testCtx.theEnvironmentVariableIsSetTo)
}

func (testCtx *TestContext) registerOutputSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the output should have (\d+) lines?$`, testCtx.theOutputShouldHaveLines)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^every output line should be valid JSON$`, testCtx.everyOutputLineShouldBeValidJSON)
	sc.Step(`^the JSON should contain "([^"]*)"$`, testCtx.theJSONShouldContain)
	sc.Step(`^the JSON should not contain "([^"]*)"$`, testCtx.theJSONShouldNotContain)
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theJSONFieldShouldBe)
	sc.Step(`^the JSON field "([^"]*)" of line (\d+) should be "([^"]*)"$`, testCtx.theJSONFieldOfLineShouldBe)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
	sc.Step(`^the logs should contain "([^"]*)"$`, testCtx.theLogsShouldContain)
}

func (testCtx *TestContext) registerFileSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
	sc.Step(`^a file "([^"]*)" with:$`, testCtx.aFileWithContent)
}
