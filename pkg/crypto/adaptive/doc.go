// Package adaptive provides authenticated encryption for snapshot files.
//
// New picks AES-256-GCM on platforms with hardware AES and
// ChaCha20-Poly1305 elsewhere; NewWithType forces one. Keys are usually
// derived from an operator passphrase with DeriveKey (argon2id) and a
// per-file random salt.
//
//	salt, _ := adaptive.NewSalt()
//	c, _ := adaptive.New(adaptive.DeriveKey(pass, salt, adaptive.DefaultKDF))
//	sealed, _ := c.Encrypt(plain, header)
package adaptive
