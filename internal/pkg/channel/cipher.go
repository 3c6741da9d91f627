// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package channel

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"github.com/apptainer/modlauncher/internal/pkg/launchererr"
)

// zeroIV is the fixed all-zero 16-byte IV used for every encryption. Every
// message encrypted under the same secret (the construction self-test and
// each datagram) therefore reuses the same key and IV; no per-message nonce
// is sent.
var zeroIV = make([]byte, aes.BlockSize)

// aesCBC is the AES-128-CBC + PKCS#5/7 cipher keyed by SHA-256(secret).
type aesCBC struct {
	block cipher.Block
}

func newAESCBC(secret string) (*aesCBC, error) {
	sum := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(sum[:aes.BlockSize])
	if err != nil {
		return nil, launchererr.New(launchererr.CryptoUnavailable, err)
	}
	c := &aesCBC{block: block}

	// A non-block-aligned sample must survive a round trip, or
	// construction fails.
	const sample = "launcher command channel self-test"
	ct, err := c.encrypt([]byte(sample))
	if err != nil {
		return nil, launchererr.New(launchererr.CryptoUnavailable, err)
	}
	pt, err := c.decrypt(ct)
	if err != nil || string(pt) != sample {
		return nil, launchererr.Newf(launchererr.CryptoUnavailable, "cipher self-test failed")
	}
	return c, nil
}

func (c *aesCBC) encrypt(plaintext []byte) ([]byte, error) {
	padded := pkcs5Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, zeroIV).CryptBlocks(out, padded)
	return out, nil
}

func (c *aesCBC) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, launchererr.Newf(launchererr.CryptoUnavailable, "ciphertext not block-aligned")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, zeroIV).CryptBlocks(out, ciphertext)
	return pkcs5Unpad(out)
}

func pkcs5Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs5Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("empty block")
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > n {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:n-padLen], nil
}
