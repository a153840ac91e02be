package chain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRPCError struct {
	code int
	msg  string
	data interface{}
}

func (e fakeRPCError) Error() string          { return e.msg }
func (e fakeRPCError) ErrorCode() int         { return e.code }
func (e fakeRPCError) ErrorData() interface{} { return e.data }

func TestClassify(t *testing.T) {
	require.NoError(t, Classify(nil))

	transport := Classify(errors.New("dial tcp: connection refused"))
	var tagged *Error
	require.ErrorAs(t, transport, &tagged)
	require.Equal(t, KindTransport, tagged.Kind)

	plain := Classify(fmt.Errorf("send: %w", fakeRPCError{code: -32602, msg: "invalid params"}))
	require.ErrorAs(t, plain, &tagged)
	require.Equal(t, KindRPC, tagged.Kind)
	require.Equal(t, -32602, tagged.Code)
	require.False(t, IsRevert(plain))

	revert := Classify(fakeRPCError{code: 3, msg: "execution reverted", data: "0x08c379a0"})
	require.True(t, IsRevert(revert))
	require.ErrorAs(t, revert, &tagged)
	require.Equal(t, []byte{0x08, 0xc3, 0x79, 0xa0}, tagged.Data)
	require.Contains(t, revert.Error(), "0x08c379a0")

	aa := Classify(fakeRPCError{code: -32500, msg: "AA23 reverted: signature error"})
	require.True(t, IsRevert(aa))

	require.Same(t, revert, Classify(revert))
}
