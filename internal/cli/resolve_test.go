package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Text(t *testing.T) {
	out, _, err := execute(t, "resolve", "--cycles", "3..5", "Add(10); ToString()")
	require.NoError(t, err)
	assert.Contains(t, out, "type:       long -> string")
	assert.Contains(t, out, "  3: 13\n")
	assert.Contains(t, out, "  4: 14\n")
	assert.NotContains(t, out, "trace:")
}

func TestResolve_JSONWithTrace(t *testing.T) {
	out, _, err := execute(t, "resolve", "--format", "json", "--trace", "--type", "int", "--cycles", "2", "Identity(); ToInt()")
	require.NoError(t, err)

	var res ResolveResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "int", res.Out)
	require.Len(t, res.Samples, 2)
	assert.Equal(t, "1", res.Samples[1].Value)
	assert.NotEmpty(t, res.Trace)
	assert.Empty(t, res.Error)
}

func TestResolve_FailurePrintsTrace(t *testing.T) {
	out, _, err := execute(t, "resolve", "--type", "bool", "ToString()")
	require.Error(t, err)
	assert.Equal(t, ExitError, GetExitCode(err))
	assert.Contains(t, out, "trace:")
}

func TestResolve_InvalidFlags(t *testing.T) {
	_, _, err := execute(t, "resolve", "--type", "decimal", "Identity()")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --type")

	_, _, err = execute(t, "resolve", "--cycles", "inf", "Identity()")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bounded")
}

func TestFunctions(t *testing.T) {
	out, _, err := execute(t, "functions")
	require.NoError(t, err)
	for _, name := range []string{"Hash(", "Mod(", "Template(", "ToUUID("} {
		assert.Contains(t, out, name)
	}

	out, _, err = execute(t, "functions", "--format", "json", "Mod")
	require.NoError(t, err)
	var infos []FunctionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.NotEmpty(t, infos)
	for _, info := range infos {
		assert.Equal(t, "Mod", info.Name)
	}

	_, _, err = execute(t, "functions", "Nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown function "Nope"`)
}
