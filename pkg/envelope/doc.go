// Package envelope encrypts peer payloads into a compact two-segment envelope.
//
// An envelope is the base64url JSON header and the URL-escaped base64 cipher
// text joined by a single dot:
//
//	eyJhbGciOiJFQ0RILUVTIiwiZW5jIjoiQTI1NktXIn0.<cipher text>
//
// The symmetric key is never carried in the envelope. It is either derived with
// secp256k1 ECDH between the two peers (header alg ECDH-ES) or supplied by the
// caller (header enc only). This is a deliberate two-segment reduction of the
// JWE compact serialization: there is no wrapped key, IV or tag segment, and RSA
// key management is not supported. Interoperating systems must not treat it as
// a standards compliant JWE.
//
// The cipher is AES-256-CBC with the key and IV produced from the passphrase by
// OpenSSL's EVP_BytesToKey (MD5, one round, no salt), which keeps envelopes
// readable by peers running the original client.
package envelope
