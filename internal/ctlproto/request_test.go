// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctlproto

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func parseString(t *testing.T, input string) (*Request, error) {
	t.Helper()
	return Parse(bufio.NewReader(strings.NewReader(input)))
}

func TestParseUpdateSingleDomain(t *testing.T) {
	req, err := parseString(t, "update X\nfoo.example\n\n")
	require.NoError(t, err)
	require.Equal(t, KindUpdate, req.Kind)
	require.Equal(t, "X", req.SetName)
	require.Equal(t, []string{"foo.example"}, req.Domains)
}

func TestParseUpdateEmptyBody(t *testing.T) {
	req, err := parseString(t, "update X\n\n")
	require.NoError(t, err)
	require.Empty(t, req.Domains)
}

func TestParseUpdateMultipleDomains(t *testing.T) {
	req, err := parseString(t, "update A\na.example\nb.example\n\n")
	require.NoError(t, err)
	require.Equal(t, []string{"a.example", "b.example"}, req.Domains)
}

func TestParseDrop(t *testing.T) {
	req, err := parseString(t, "drop X\n\n")
	require.NoError(t, err)
	require.Equal(t, KindDrop, req.Kind)
	require.Equal(t, "X", req.SetName)
}

func TestParseDropTerminatedByEOF(t *testing.T) {
	req, err := parseString(t, "drop X\n")
	require.NoError(t, err)
	require.Equal(t, KindDrop, req.Kind)
	require.Equal(t, "X", req.SetName)
}

func TestParseUnknownCommand(t *testing.T) {
	_, err := parseString(t, "frobnicate X\n\n")
	require.Equal(t, ReplyWrongCommand, Reply(err))
}

func TestParseMissingSetName(t *testing.T) {
	_, err := parseString(t, "update\n\n")
	require.Equal(t, ReplyWrongCommand, Reply(err))
}

func TestParseOversizeSetName(t *testing.T) {
	name := strings.Repeat("a", 31)
	_, err := parseString(t, "update "+name+"\n\n")
	require.Equal(t, ReplyBadSetName, Reply(err))
}

func TestParseSetNameExactly30BytesAccepted(t *testing.T) {
	name := strings.Repeat("a", 30)
	req, err := parseString(t, "update "+name+"\n\n")
	require.NoError(t, err)
	require.Equal(t, name, req.SetName)
}

func TestParseLeadingBlankLineIsGarbage(t *testing.T) {
	_, err := parseString(t, "\nupdate X\nfoo.example\n\n")
	require.Equal(t, ReplyGarbage, Reply(err))
}

func TestReplyNotFoundAndErrorFormatting(t *testing.T) {
	require.Equal(t, "set A is not found\n", ReplyNotFound("A"))
	require.Equal(t, "error: boom\n", ReplyError("boom"))
}
