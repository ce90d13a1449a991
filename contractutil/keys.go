package contractutil

import (
	"crypto/sha256"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// TweakPrivKey derives a per-swapcoin private key from this Maker's
// long-lived tweakable keypair and a nonce chosen by whichever side
// generated the swapcoin, the same additive-tweak-by-scalar construction
// lnwallet/script_utils.go uses to derive a revocation key from a per-commit
// point, repurposed here from revocation-key derivation to swap-key
// derivation: no state is shared across swaps beyond the one base keypair.
func TweakPrivKey(basePriv *btcec.PrivateKey, nonce [32]byte) *btcec.PrivateKey {
	scalar := tweakScalar(basePriv.PubKey(), nonce)

	privInt := new(big.Int).SetBytes(basePriv.Serialize())
	privInt.Add(privInt, new(big.Int).SetBytes(scalar[:]))
	privInt.Mod(privInt, btcec.S256().N)

	privBytes := make([]byte, 32)
	privInt.FillBytes(privBytes)

	priv, _ := btcec.PrivKeyFromBytes(privBytes)
	return priv
}

// TweakPubKey derives the public half of TweakPrivKey's key without needing
// the private key, for validating a counterparty's claimed nonce-tweaked
// key.
func TweakPubKey(basePub *btcec.PublicKey, nonce [32]byte) *btcec.PublicKey {
	scalar := tweakScalar(basePub, nonce)

	var scalarModN btcec.ModNScalar
	scalarModN.SetByteSlice(scalar[:])

	var basePointJ, scalarPointJ, tweakedJ btcec.JacobianPoint
	basePub.AsJacobian(&basePointJ)
	btcec.ScalarBaseMultNonConst(&scalarModN, &scalarPointJ)
	btcec.AddNonConst(&basePointJ, &scalarPointJ, &tweakedJ)
	tweakedJ.ToAffine()

	return btcec.NewPublicKey(&tweakedJ.X, &tweakedJ.Y)
}

// tweakScalar binds the nonce to the base public key so a nonce can't be
// replayed against a different base key to land on a predictable tweak.
func tweakScalar(basePub *btcec.PublicKey, nonce [32]byte) [32]byte {
	h := sha256.New()
	h.Write(nonce[:])
	h.Write(basePub.SerializeCompressed())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
