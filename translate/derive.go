package translate

import (
	"fmt"

	"github.com/longbridgeapp/opencc"
)

// Derivation produces a language from an already resolved one without the
// session, e.g. zh-Hant from zh-Hans.
type Derivation struct {
	From    string
	Convert func(string) (string, error)
}

// OpenCCDerivation returns a Derivation from lang from using the OpenCC
// conversion scheme (s2t, t2s, s2tw, s2hk, ...).
func OpenCCDerivation(from, scheme string) (Derivation, error) {
	cc, err := opencc.New(scheme)
	if err != nil {
		return Derivation{}, fmt.Errorf("translate: opencc %s: %w", scheme, err)
	}
	return Derivation{From: from, Convert: cc.Convert}, nil
}
