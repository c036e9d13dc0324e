package sign

import (
	"bytes"
	"encoding/binary"
	"errors"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/kyber/v3/sign/bls"
	"go.dedis.ch/kyber/v3/sign/tbls"
)

var (
	// ErrInvalidKeySize is returned when a key has an unexpected width.
	ErrInvalidKeySize = errors.New("invalid key size")

	suite = bn256.NewSuite()
)

// GenTSKeys creates n threshold-signature key shares with threshold t,
// along with the public polynomial used for verification and assembly.
func GenTSKeys(t, n int) ([]*share.PriShare, *share.PubPoly) {
	secret := suite.G2().Scalar().Pick(suite.RandomStream())
	priPoly := share.NewPriPoly(suite.G2(), t, secret, suite.RandomStream())
	pubPoly := priPoly.Commit(suite.G2().Point().Base())
	return priPoly.Shares(n), pubPoly
}

// SignTSPartial creates a partial threshold signature over data.
func SignTSPartial(priShare *share.PriShare, data []byte) []byte {
	sig, err := tbls.Sign(suite, priShare, data)
	if err != nil {
		panic(err)
	}
	return sig
}

// VerifyTSPartial checks a partial signature against the public polynomial.
func VerifyTSPartial(pubPoly *share.PubPoly, data, partialSig []byte) error {
	sh := tbls.SigShare(partialSig)
	i, err := sh.Index()
	if err != nil {
		return err
	}
	return bls.Verify(suite, pubPoly.Eval(i).V, data, sh.Value())
}

// AssembleIntactTSPartial recovers the intact threshold signature from
// at least t partial signatures over the same data.
func AssembleIntactTSPartial(partialSigs [][]byte, pubPoly *share.PubPoly, data []byte, t, n int) []byte {
	sig, err := tbls.Recover(suite, pubPoly, data, partialSigs, t, n)
	if err != nil {
		panic(err)
	}
	return sig
}

// VerifyTS checks an assembled threshold signature.
func VerifyTS(pubPoly *share.PubPoly, data, sig []byte) error {
	return bls.Verify(suite, pubPoly.Commit(), data, sig)
}

// EncodeTSPublicKey serializes the public polynomial commitments so they
// can be carried in a configuration file.
func EncodeTSPublicKey(pubPoly *share.PubPoly) ([]byte, error) {
	base, commits := pubPoly.Info()
	var buf bytes.Buffer
	count := make([]byte, 8)
	binary.LittleEndian.PutUint64(count, uint64(len(commits)))
	buf.Write(count)
	if _, err := base.MarshalTo(&buf); err != nil {
		return nil, err
	}
	for _, c := range commits {
		if _, err := c.MarshalTo(&buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeTSPublicKey parses the output of EncodeTSPublicKey.
func DecodeTSPublicKey(data []byte) (*share.PubPoly, error) {
	if len(data) < 8 {
		return nil, ErrInvalidKeySize
	}
	count := binary.LittleEndian.Uint64(data[:8])
	r := bytes.NewReader(data[8:])
	base := suite.G2().Point()
	if _, err := base.UnmarshalFrom(r); err != nil {
		return nil, err
	}
	commits := make([]kyber.Point, count)
	for i := range commits {
		commits[i] = suite.G2().Point()
		if _, err := commits[i].UnmarshalFrom(r); err != nil {
			return nil, err
		}
	}
	return share.NewPubPoly(suite.G2(), base, commits), nil
}

// EncodeTSPartialKey serializes a private key share.
func EncodeTSPartialKey(priShare *share.PriShare) ([]byte, error) {
	var buf bytes.Buffer
	index := make([]byte, 8)
	binary.LittleEndian.PutUint64(index, uint64(priShare.I))
	buf.Write(index)
	if _, err := priShare.V.MarshalTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeTSPartialKey parses the output of EncodeTSPartialKey.
func DecodeTSPartialKey(data []byte) (*share.PriShare, error) {
	if len(data) < 8 {
		return nil, ErrInvalidKeySize
	}
	index := binary.LittleEndian.Uint64(data[:8])
	v := suite.G2().Scalar()
	if err := v.UnmarshalBinary(data[8:]); err != nil {
		return nil, err
	}
	return &share.PriShare{I: int(index), V: v}, nil
}
