package envelope

import "fmt"

// SymmEncrypt seals plaintext under a caller supplied symmetric key
func SymmEncrypt(key, plaintext []byte) (string, error) {
	ct, err := seal(key, plaintext)
	if err != nil {
		return "", err
	}

	env := &Envelope{
		Header:     Header{Enc: EncA256KW},
		Ciphertext: ct,
	}
	return env.String(), nil
}

// SymmDecrypt opens an envelope produced by SymmEncrypt
func SymmDecrypt(key []byte, text string) ([]byte, error) {
	env, err := Parse(text)
	if err != nil {
		return nil, err
	}

	if env.Header.Enc == "" {
		return nil, ErrMissingEnc
	}
	if env.Header.Enc != EncA256KW {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEnc, env.Header.Enc)
	}

	return open(key, env.Ciphertext)
}
