package wire

import (
	"bytes"
	"testing"

	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// roundTrip writes msg through WriteMessage and reads it back, mirroring
// lnwire's message_test.go encode/decode round trip style.
func roundTrip(t *testing.T, msg Message, extra ExtraOpaqueData) (Message, ExtraOpaqueData) {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, msg, extra))

	got, gotExtra, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, msg.MsgType(), got.MsgType())

	return got, gotExtra
}

func TestTakerHelloRoundTrip(t *testing.T) {
	msg := &TakerHello{ProtocolVersion: 1, TakerAddress: "127.0.0.1:9000"}
	got, _ := roundTrip(t, msg, nil)
	require.Equal(t, msg, got)
}

func TestProofOfFundingRoundTrip(t *testing.T) {
	tx := btcwire.NewMsgTx(btcwire.TxVersion)
	tx.AddTxIn(btcwire.NewTxIn(&btcwire.OutPoint{Index: 1}, nil, nil))
	tx.AddTxOut(btcwire.NewTxOut(100000, []byte{0x00, 0x14}))

	msg := &ProofOfFunding{
		ConfirmedFundingTxes: []FundingTxInfo{
			{
				FundingTx:            tx,
				FundingOutputIndex:   0,
				ContractRedeemscript: []byte{0x63, 0x64},
				ContractLocktime:     144,
			},
		},
	}

	got, _ := roundTrip(t, msg, nil)
	gotPof, ok := got.(*ProofOfFunding)
	require.True(t, ok)
	require.Len(t, gotPof.ConfirmedFundingTxes, 1)
	require.Equal(t, msg.ConfirmedFundingTxes[0].ContractLocktime,
		gotPof.ConfirmedFundingTxes[0].ContractLocktime)
	require.Equal(t, msg.ConfirmedFundingTxes[0].FundingTx.TxHash(),
		gotPof.ConfirmedFundingTxes[0].FundingTx.TxHash())
}

func TestPrivateKeyHandoverRoundTrip(t *testing.T) {
	msg := &PrivateKeyHandover{
		MultisigPrivkeys: []MultisigPrivkey{
			{MultisigRedeemscript: []byte{0x51}, Privkey: [32]byte{1, 2, 3}},
		},
	}
	got, _ := roundTrip(t, msg, nil)
	require.Equal(t, msg, got)
}

func TestReadMessageUnknownType(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeUint32(&buf, 2))
	require.NoError(t, writeUint16(&buf, 9999))

	_, _, err := ReadMessage(&buf)
	require.Error(t, err)

	var unknown *UnknownMessage
	require.ErrorAs(t, err, &unknown)
}

func TestExtraOpaqueDataPreserved(t *testing.T) {
	msg := &Ack{}
	extra := ExtraOpaqueData{0x01, 0x02, 0x03}

	_, gotExtra := roundTrip(t, msg, extra)
	require.Equal(t, extra, gotExtra)
}
