package dkim

import (
	"bytes"
	"context"
	"fmt"

	msgauth "github.com/emersion/go-msgauth/dkim"
)

// VerifyWithLibrary runs go-msgauth's full RFC 6376 evaluation over the
// raw email, resolving key records through resolver when one is given.
// ParseAndVerify remains the source of the canonicalized bytes the
// circuits consume; this is the pre-flight check before submitting a
// proving job.
func VerifyWithLibrary(ctx context.Context, rawEmail []byte, resolver Resolver) error {
	opts := &msgauth.VerifyOptions{}
	if resolver != nil {
		opts.LookupTXT = func(name string) ([]string, error) {
			return resolver.LookupTXT(ctx, name)
		}
	}
	verifications, err := msgauth.VerifyWithOptions(bytes.NewReader(normalizeCRLF(rawEmail)), opts)
	if err != nil {
		return fmt.Errorf("%w: gate: %v", ErrVerification, err)
	}
	if len(verifications) == 0 {
		return ErrNoSignature
	}
	for _, v := range verifications {
		if v.Err != nil {
			return fmt.Errorf("%w: gate for %s: %v", ErrVerification, v.Domain, v.Err)
		}
	}
	return nil
}
