package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSimpleText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		err   error
	}{
		{name: "line", input: "  alice \n", want: "alice"},
		{name: "last line without newline", input: "bob", want: "bob"},
		{name: "empty input", input: "", err: io.EOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := GetSimpleText(bufio.NewReader(strings.NewReader(tt.input)), "Enter username", &out)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "Enter username: ", out.String())
		})
	}
}

func TestGetPassword(t *testing.T) {
	old := readPassword
	defer func() { readPassword = old }()

	readPassword = func(int) ([]byte, error) { return []byte("pw"), nil }
	var out bytes.Buffer
	pw, err := GetPassword(&out)
	require.NoError(t, err)
	assert.Equal(t, "pw", string(pw))
	assert.Contains(t, out.String(), "Enter password")

	readPassword = func(int) ([]byte, error) { return nil, errors.New("no tty") }
	_, err = GetPassword(&out)
	require.Error(t, err)
}

func TestAdd_PromptsForRequiredFields(t *testing.T) {
	a := newTestApp("Attention Is All You Need\n")

	require.NoError(t, a.Add(context.Background(), []string{"papers"}))
	assert.Contains(t, a.out.String(), "title: ")
	assert.Contains(t, a.out.String(), "Added papers #1")
	assert.Equal(t, "Attention Is All You Need", a.records.data[api.Papers][1]["title"])
}

func TestAdd_PromptNumericField(t *testing.T) {
	a := newTestApp("7\n")

	require.NoError(t, a.Add(context.Background(), []string{"annotations"}))
	assert.Contains(t, a.out.String(), "paperId: ")
	assert.EqualValues(t, 7, a.records.data[api.Annotations][1]["paperId"])
}
