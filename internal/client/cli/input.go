package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/client/models"
	"golang.org/x/term"
)

// readPassword is swapped in tests so they never touch the terminal.
var readPassword = term.ReadPassword

// GetSimpleText writes "label: " to w and returns the next trimmed line.
// A final line without a newline is still returned.
func GetSimpleText(reader *bufio.Reader, label string, w io.Writer) (string, error) {
	if _, err := fmt.Fprintf(w, "%s: ", label); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetPassword reads a password from the terminal without echo.
func GetPassword(w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprint(w, "Enter password: "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	return pw, err
}

// promptRequired asks for every required field of e. Answers go through the
// same parsing as name=value arguments.
func promptRequired(reader *bufio.Reader, w io.Writer, e api.Entity) (api.Record, error) {
	rec := api.Record{}
	for _, f := range models.SchemaFor(e).Required {
		v, err := getSimpleText(reader, f, w)
		if err != nil {
			return nil, err
		}
		part, err := models.FieldsFromStrings([]string{f + "=" + v})
		if err != nil {
			return nil, err
		}
		rec[f] = part[f]
	}
	return rec, nil
}
