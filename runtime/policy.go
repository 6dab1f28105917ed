package runtime

import (
	"github.com/neatsys-bench/neatcore/identity"
)

// Policy is the verification policy a Receiver selects per message
// Kind: verify-and-extract-signer, skip verification, or drop
// unconditionally.
type Policy struct {
	kind policyKind
	// extractor returns the claimed signer's identity.Index from a
	// decoded payload, used only when kind is policyVerify.
	extractor func(payload any) identity.Index
}

type policyKind int

const (
	policyVerify policyKind = iota
	policySkip
	policyDrop
)

// VerifyThen requires the incoming envelope's signature to verify
// against the signer identified by extractor before the Receiver sees
// it.
func VerifyThen(extractor func(payload any) identity.Index) Policy {
	return Policy{kind: policyVerify, extractor: extractor}
}

// Skip delivers the message to the Receiver without any signature
// check; verified is reported false.
var Skip = Policy{kind: policySkip}

// Drop discards the message before it ever reaches the Receiver.
var Drop = Policy{kind: policyDrop}
