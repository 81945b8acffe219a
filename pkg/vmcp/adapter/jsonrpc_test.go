package adapter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

func TestErrorCode_BadArgumentsMapsToInvalidParams(t *testing.T) {
	t.Parallel()
	assert.Equal(t, codeInvalidParams, errorCode(vmcp.KindBadArguments))
}

func TestErrorCode_UnknownToolMapsToMethodNotFound(t *testing.T) {
	t.Parallel()
	assert.Equal(t, codeMethodNotFound, errorCode(vmcp.KindUnknownTool))
	assert.Equal(t, codeMethodNotFound, errorCode(vmcp.KindUnknownResource))
	assert.Equal(t, codeMethodNotFound, errorCode(vmcp.KindUnknownPrompt))
}

func TestErrorCode_UnrecognizedKindMapsToInternal(t *testing.T) {
	t.Parallel()
	assert.Equal(t, codeInternal, errorCode(vmcp.KindInternal))
}

func TestErrorData_RedactsSecretValue(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("%w: leaked sk-topsecret in response", vmcp.ErrUpstreamToolError)
	data := errorData(err, []string{"sk-topsecret"})

	assert.Equal(t, string(vmcp.KindUpstreamToolError), data["kind"])
	assert.NotContains(t, data["detail"], "sk-topsecret")
}

func TestToRPCError_CarriesCodeAndData(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("%w: no such resource docs://missing", vmcp.ErrUnknownResource)
	rpcErr := toRPCError(err, nil)

	re, ok := rpcErr.(*rpcError)
	assert.True(t, ok)
	assert.Equal(t, codeMethodNotFound, re.Code())
	assert.Equal(t, string(vmcp.KindUnknownResource), re.Data()["kind"])
}
