package framework

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllowListNilAllowsEverything(t *testing.T) {
	var allow AllowList
	require.True(t, allow.Unrestricted())
	require.True(t, allow.Allows("anything"))
	require.Nil(t, allow.Types())
}

func TestAllowListEmptyAllowsNothing(t *testing.T) {
	allow := NewAllowList()
	require.False(t, allow.Unrestricted())
	require.False(t, allow.Allows("text"))
	require.False(t, allow.Equal(nil), "empty and nil lists differ")
}

func TestAllowListCaseInsensitive(t *testing.T) {
	allow := NewAllowList("Text_Print", " VARIABLE ")
	require.True(t, allow.Allows("text_print"))
	require.True(t, allow.Allows("variable"))
	require.Equal(t, []string{"text_print", "variable"}, allow.Types())
}

func TestParseAllowList(t *testing.T) {
	require.Nil(t, ParseAllowList("*"))
	require.Equal(t, AllowList{}, ParseAllowList(""))
	allow := ParseAllowList("text, math_number,,")
	require.Equal(t, []string{"math_number", "text"}, allow.Types())
}
