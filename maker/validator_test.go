package maker

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/coinswapd/maker/contractutil"
	"github.com/coinswapd/maker/wire"
)

func TestCheckFundingTxStandardness(t *testing.T) {
	p2wsh := make([]byte, 34)
	p2wsh[0] = 0x00
	p2wsh[1] = 0x20

	require.NoError(t, checkFundingTxStandardness(p2wsh, 100_000))
	require.Error(t, checkFundingTxStandardness(p2wsh, 100))
	require.Error(t, checkFundingTxStandardness([]byte{0x51, 0x02, 0xaa, 0xbb}, 100_000))
}

func TestVerifyAndSignSenderTxRoundTrip(t *testing.T) {
	node := newFakeNode()
	wal := newTestWallet(t, node)
	cp := newCounterparty(t)

	var multisigNonce, timelockNonce [32]byte
	multisigNonce[0] = 1
	timelockNonce[0] = 2
	timelock := uint16(100)
	hashValue := sha256.Sum256([]byte("swap preimage"))

	ourMultisigPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), multisigNonce)
	multisigRedeemscript, err := contractutil.MultisigRedeemscript(ourMultisigPub, cp.pub())
	require.NoError(t, err)

	ourTimelockPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), timelockNonce)
	contractRedeemscript, err := contractutil.ContractRedeemscript(cp.pub(), ourTimelockPub, hashValue, int64(timelock))
	require.NoError(t, err)
	contractPkScript, err := contractutil.ContractPkScript(contractRedeemscript)
	require.NoError(t, err)

	fundingOutpoint := btcwire.OutPoint{Hash: chainhash.HashH([]byte("funding-outpoint")), Index: 0}
	const fundingValue = int64(100_000)

	senderContractTx := btcwire.NewMsgTx(2)
	senderContractTx.AddTxIn(btcwire.NewTxIn(&fundingOutpoint, nil, nil))
	senderContractTx.AddTxOut(btcwire.NewTxOut(fundingValue-500, contractPkScript))

	counterpartySig := cp.sign(senderContractTx, multisigRedeemscript, fundingValue)

	info := &wire.SenderTxInfo{
		MultisigNonce:        multisigNonce,
		TimelockNonce:        timelockNonce,
		Timelock:             timelock,
		SenderContractTx:     senderContractTx,
		MultisigRedeemscript: multisigRedeemscript,
		FundingInputValue:    fundingValue,
		HashValue:            hashValue,
		CounterpartyPubkey:   cp.pub().SerializeCompressed(),
		CounterpartySig:      counterpartySig,
	}

	coin, sig, err := VerifyAndSignSenderTx(wal, info)
	require.NoError(t, err)
	require.NotNil(t, sig)
	require.Equal(t, fundingOutpoint, coin.FundingOutpoint)
	require.Equal(t, fundingValue, coin.FundingValue)
	require.Equal(t, timelock, coin.RelativeTimelock)
	require.True(t, coin.FullySigned())

	cached, ok := wal.ContractCache.Lookup(fundingOutpoint)
	require.True(t, ok)
	require.Equal(t, contractPkScript, cached)
}

func TestVerifyAndSignSenderTxRejectsWrongContractOutput(t *testing.T) {
	node := newFakeNode()
	wal := newTestWallet(t, node)
	cp := newCounterparty(t)

	var multisigNonce, timelockNonce [32]byte
	multisigNonce[0] = 1
	timelockNonce[0] = 2
	timelock := uint16(100)
	hashValue := sha256.Sum256([]byte("swap preimage"))

	ourMultisigPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), multisigNonce)
	multisigRedeemscript, err := contractutil.MultisigRedeemscript(ourMultisigPub, cp.pub())
	require.NoError(t, err)

	fundingOutpoint := btcwire.OutPoint{Hash: chainhash.HashH([]byte("funding-outpoint-2")), Index: 0}
	const fundingValue = int64(100_000)

	senderContractTx := btcwire.NewMsgTx(2)
	senderContractTx.AddTxIn(btcwire.NewTxIn(&fundingOutpoint, nil, nil))
	// Pays a script that has nothing to do with the agreed contract.
	senderContractTx.AddTxOut(btcwire.NewTxOut(fundingValue-500, []byte{0x6a}))

	info := &wire.SenderTxInfo{
		MultisigNonce:        multisigNonce,
		TimelockNonce:        timelockNonce,
		Timelock:             timelock,
		SenderContractTx:     senderContractTx,
		MultisigRedeemscript: multisigRedeemscript,
		FundingInputValue:    fundingValue,
		HashValue:            hashValue,
		CounterpartyPubkey:   cp.pub().SerializeCompressed(),
		CounterpartySig:      []byte{0x01},
	}

	_, _, err = VerifyAndSignSenderTx(wal, info)
	require.Error(t, err)
}

func TestVerifyProofOfFundingRoundTrip(t *testing.T) {
	node := newFakeNode()
	wal := newTestWallet(t, node)
	cp := newCounterparty(t)
	cpTimelockPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	hashValue := sha256.Sum256([]byte("route preimage"))

	outgoing := []*OutgoingSwapCoin{{swapCoinCommon: swapCoinCommon{}, RelativeTimelock: 50}}

	var multisigNonce, hashlockNonce [32]byte
	multisigNonce[0] = 10
	hashlockNonce[0] = 20

	ourMultisigPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), multisigNonce)
	multisigRedeemscript, err := contractutil.MultisigRedeemscript(ourMultisigPub, cp.pub())
	require.NoError(t, err)
	fundingPkScript, err := contractutil.FundingPkScript(multisigRedeemscript)
	require.NoError(t, err)

	ourHashlockPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), hashlockNonce)
	const contractLocktime = uint16(150) // 150 - 50 = 100 >= MinContractReactionTime(48)
	contractRedeemscript, err := contractutil.ContractRedeemscript(ourHashlockPub, cpTimelockPriv.PubKey(),
		hashValue, int64(contractLocktime))
	require.NoError(t, err)

	fundingTx := btcwire.NewMsgTx(2)
	fundingTx.AddTxIn(btcwire.NewTxIn(&btcwire.OutPoint{Hash: chainhash.HashH([]byte("prev")), Index: 0}, nil, nil))
	fundingTx.AddTxOut(btcwire.NewTxOut(100_000, fundingPkScript))

	fundingOutpoint := btcwire.OutPoint{Hash: fundingTx.TxHash(), Index: 0}
	node.confirmOutpoint(fundingOutpoint, RequiredConfirms)

	entry := wire.FundingTxInfo{
		FundingTx:                  fundingTx,
		FundingOutputIndex:         0,
		MultisigNonce:              multisigNonce,
		HashlockNonce:              hashlockNonce,
		ContractRedeemscript:       contractRedeemscript,
		ContractLocktime:           contractLocktime,
		CounterpartyMultisigPubkey: cp.pub().SerializeCompressed(),
		CounterpartyTimelockPubkey: cpTimelockPriv.PubKey().SerializeCompressed(),
		HashValue:                  hashValue,
	}
	msg := &wire.ProofOfFunding{ConfirmedFundingTxes: []wire.FundingTxInfo{entry}}

	gotHash, incoming, err := VerifyProofOfFunding(wal, node, outgoing, msg)
	require.NoError(t, err)
	require.Equal(t, hashValue, gotHash)
	require.Len(t, incoming, 1)
	require.Equal(t, fundingOutpoint, incoming[0].FundingOutpoint)

	cached, ok := wal.ContractCache.Lookup(fundingOutpoint)
	require.True(t, ok)
	contractPkScript, err := contractutil.ContractPkScript(contractRedeemscript)
	require.NoError(t, err)
	require.Equal(t, contractPkScript, cached)
}

func TestVerifyProofOfFundingRejectsInsufficientConfirmations(t *testing.T) {
	node := newFakeNode()
	wal := newTestWallet(t, node)
	cp := newCounterparty(t)
	cpTimelockPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	hashValue := sha256.Sum256([]byte("route preimage 2"))
	outgoing := []*OutgoingSwapCoin{{RelativeTimelock: 50}}

	var multisigNonce, hashlockNonce [32]byte
	multisigNonce[0] = 11
	hashlockNonce[0] = 21

	ourMultisigPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), multisigNonce)
	multisigRedeemscript, err := contractutil.MultisigRedeemscript(ourMultisigPub, cp.pub())
	require.NoError(t, err)
	fundingPkScript, err := contractutil.FundingPkScript(multisigRedeemscript)
	require.NoError(t, err)

	ourHashlockPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), hashlockNonce)
	contractRedeemscript, err := contractutil.ContractRedeemscript(ourHashlockPub, cpTimelockPriv.PubKey(),
		hashValue, 150)
	require.NoError(t, err)

	fundingTx := btcwire.NewMsgTx(2)
	fundingTx.AddTxOut(btcwire.NewTxOut(100_000, fundingPkScript))
	// Not confirmed at all: node never learns about this outpoint.

	entry := wire.FundingTxInfo{
		FundingTx:                  fundingTx,
		FundingOutputIndex:         0,
		MultisigNonce:              multisigNonce,
		HashlockNonce:              hashlockNonce,
		ContractRedeemscript:       contractRedeemscript,
		ContractLocktime:           150,
		CounterpartyMultisigPubkey: cp.pub().SerializeCompressed(),
		CounterpartyTimelockPubkey: cpTimelockPriv.PubKey().SerializeCompressed(),
		HashValue:                  hashValue,
	}
	msg := &wire.ProofOfFunding{ConfirmedFundingTxes: []wire.FundingTxInfo{entry}}

	_, _, err = VerifyProofOfFunding(wal, node, outgoing, msg)
	require.Error(t, err)
}

func TestVerifyProofOfFundingRejectsInsufficientLocktimeMargin(t *testing.T) {
	node := newFakeNode()
	wal := newTestWallet(t, node)
	cp := newCounterparty(t)
	cpTimelockPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	hashValue := sha256.Sum256([]byte("route preimage 3"))
	// Only 10 blocks of margin, below MinContractReactionTime(48).
	outgoing := []*OutgoingSwapCoin{{RelativeTimelock: 140}}

	var multisigNonce, hashlockNonce [32]byte
	multisigNonce[0] = 12
	hashlockNonce[0] = 22

	ourMultisigPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), multisigNonce)
	multisigRedeemscript, err := contractutil.MultisigRedeemscript(ourMultisigPub, cp.pub())
	require.NoError(t, err)
	fundingPkScript, err := contractutil.FundingPkScript(multisigRedeemscript)
	require.NoError(t, err)

	ourHashlockPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), hashlockNonce)
	contractRedeemscript, err := contractutil.ContractRedeemscript(ourHashlockPub, cpTimelockPriv.PubKey(),
		hashValue, 150)
	require.NoError(t, err)

	fundingTx := btcwire.NewMsgTx(2)
	fundingTx.AddTxOut(btcwire.NewTxOut(100_000, fundingPkScript))
	fundingOutpoint := btcwire.OutPoint{Hash: fundingTx.TxHash(), Index: 0}
	node.confirmOutpoint(fundingOutpoint, RequiredConfirms)

	entry := wire.FundingTxInfo{
		FundingTx:                  fundingTx,
		FundingOutputIndex:         0,
		MultisigNonce:              multisigNonce,
		HashlockNonce:              hashlockNonce,
		ContractRedeemscript:       contractRedeemscript,
		ContractLocktime:           150,
		CounterpartyMultisigPubkey: cp.pub().SerializeCompressed(),
		CounterpartyTimelockPubkey: cpTimelockPriv.PubKey().SerializeCompressed(),
		HashValue:                  hashValue,
	}
	msg := &wire.ProofOfFunding{ConfirmedFundingTxes: []wire.FundingTxInfo{entry}}

	_, _, err = VerifyProofOfFunding(wal, node, outgoing, msg)
	require.Error(t, err)
}

func TestVerifyAndSignContractTxRoundTrip(t *testing.T) {
	node := newFakeNode()
	wal := newTestWallet(t, node)

	hashlockNonce := [32]byte{5}
	hashValue := sha256.Sum256([]byte("recvr preimage"))
	ourHashlockPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), hashlockNonce)

	cpTimelockPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	contractRedeemscript, err := contractutil.ContractRedeemscript(ourHashlockPub, cpTimelockPriv.PubKey(),
		hashValue, 150)
	require.NoError(t, err)
	contractPkScript, err := contractutil.ContractPkScript(contractRedeemscript)
	require.NoError(t, err)

	fundingOutpoint := btcwire.OutPoint{Hash: chainhash.HashH([]byte("recvr-funding")), Index: 0}
	coin := &IncomingSwapCoin{swapCoinCommon{
		ContractRedeemscript: contractRedeemscript,
		FundingOutpoint:      fundingOutpoint,
		FundingValue:         90_000,
		MultisigKeyNonce:     [32]byte{6},
		BranchKeyNonce:       hashlockNonce,
		HashValue:            hashValue,
	}}

	require.NoError(t, wal.ContractCache.Insert(fundingOutpoint, contractPkScript))

	contractTx := btcwire.NewMsgTx(2)
	contractTx.AddTxIn(btcwire.NewTxIn(&fundingOutpoint, nil, nil))
	contractTx.AddTxOut(btcwire.NewTxOut(89_500, contractPkScript))

	sig, err := VerifyAndSignContractTx(wal, coin, contractTx, contractRedeemscript)
	require.NoError(t, err)
	require.NotNil(t, sig)
	require.Equal(t, contractTx, coin.ContractTx)
	require.Equal(t, sig, coin.OurSig)
}

func TestVerifyAndSignContractTxRejectsMismatchedOutpoint(t *testing.T) {
	node := newFakeNode()
	wal := newTestWallet(t, node)

	hashlockNonce := [32]byte{7}
	hashValue := sha256.Sum256([]byte("recvr preimage 2"))
	ourHashlockPub := contractutil.TweakPubKey(wal.BaseKey.PubKey(), hashlockNonce)
	cpTimelockPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	contractRedeemscript, err := contractutil.ContractRedeemscript(ourHashlockPub, cpTimelockPriv.PubKey(),
		hashValue, 150)
	require.NoError(t, err)
	contractPkScript, err := contractutil.ContractPkScript(contractRedeemscript)
	require.NoError(t, err)

	fundingOutpoint := btcwire.OutPoint{Hash: chainhash.HashH([]byte("recvr-funding-2")), Index: 0}
	wrongOutpoint := btcwire.OutPoint{Hash: chainhash.HashH([]byte("other")), Index: 0}
	coin := &IncomingSwapCoin{swapCoinCommon{
		ContractRedeemscript: contractRedeemscript,
		FundingOutpoint:      fundingOutpoint,
		FundingValue:         90_000,
		HashValue:            hashValue,
	}}
	require.NoError(t, wal.ContractCache.Insert(fundingOutpoint, contractPkScript))

	contractTx := btcwire.NewMsgTx(2)
	contractTx.AddTxIn(btcwire.NewTxIn(&wrongOutpoint, nil, nil))
	contractTx.AddTxOut(btcwire.NewTxOut(89_500, contractPkScript))

	_, err = VerifyAndSignContractTx(wal, coin, contractTx, contractRedeemscript)
	require.Error(t, err)
}
