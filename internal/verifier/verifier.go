// Package verifier checks that an applied batch moved the backend toward the
// frontend for every resolved key.
package verifier

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/dbsmedya/contentsync/internal/differ"
	"github.com/dbsmedya/contentsync/internal/logger"
	"github.com/dbsmedya/contentsync/internal/record"
	"github.com/dbsmedya/contentsync/internal/resolution"
)

// VerificationMethod defines how unchanged differences are compared.
type VerificationMethod string

const (
	// MethodCount compares presence, kind and number of differing fields (fast)
	MethodCount VerificationMethod = "count"
	// MethodSHA256 compares a fingerprint of kind and field values (thorough)
	MethodSHA256 VerificationMethod = "sha256"
	// MethodSkip skips verification entirely
	MethodSkip VerificationMethod = "skip"
)

// ParseMethod returns the method for a config value. Empty means count.
func ParseMethod(s string) (VerificationMethod, error) {
	switch m := VerificationMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodCount, nil
	case MethodCount, MethodSHA256, MethodSkip:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported verification method: %s", s)
	}
}

// VerifyStats contains overall verification statistics.
type VerifyStats struct {
	KeysVerified int                `json:"keysVerified"`
	Converged    int                `json:"converged"`
	Unchanged    int                `json:"unchanged"`
	Failed       int                `json:"failed"`
	Method       VerificationMethod `json:"method"`
}

// Failure is one key that did not behave as its resolution implied.
type Failure struct {
	Key        string                `json:"key"`
	Resolution resolution.Resolution `json:"resolution"`
	Reason     string                `json:"reason"`
}

// ConvergenceError lists every key that failed verification.
type ConvergenceError struct {
	Failures []Failure
}

func (e *ConvergenceError) Error() string {
	if len(e.Failures) == 1 {
		f := e.Failures[0]
		return fmt.Sprintf("convergence check failed for %q (%s): %s", f.Key, f.Resolution, f.Reason)
	}
	keys := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		keys[i] = f.Key
	}
	return fmt.Sprintf("convergence check failed for %d keys: %s", len(e.Failures), strings.Join(keys, ", "))
}

// Verifier compares the report before a batch with the report after it.
type Verifier struct {
	method VerificationMethod
	logger *logger.Logger
}

// NewVerifier creates a verifier. An empty method defaults to count.
func NewVerifier(method VerificationMethod, log *logger.Logger) (*Verifier, error) {
	if log == nil {
		log = logger.NewDefault()
	}
	if method == "" {
		method = MethodCount
	}
	switch method {
	case MethodCount, MethodSHA256, MethodSkip:
	default:
		return nil, fmt.Errorf("unsupported verification method: %s", method)
	}
	return &Verifier{method: method, logger: log}, nil
}

// Method returns the configured method.
func (v *Verifier) Method() VerificationMethod {
	return v.method
}

// Verify checks every resolved key present in before:
//   - mutating resolutions must leave the key absent from after, or closer to converged;
//   - no-op resolutions must leave the key's difference as it was.
//
// Keys that were not in before are ignored.
func (v *Verifier) Verify(before, after *differ.Report, resolutions map[string]resolution.Resolution) (*VerifyStats, error) {
	if v.method == MethodSkip {
		v.logger.Info("Verification SKIPPED (method=skip)")
		return &VerifyStats{Method: MethodSkip}, nil
	}
	if before == nil || after == nil {
		return nil, fmt.Errorf("verification needs both reports")
	}

	stats := &VerifyStats{Method: v.method}
	var failures []Failure

	keys := make([]string, 0, len(resolutions))
	for key := range resolutions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		res := resolutions[key]
		prev, ok := before.Find(key)
		if !ok {
			continue
		}
		stats.KeysVerified++
		next, stillThere := after.Find(key)

		if res.Mutating() {
			if !stillThere || distance(next) < distance(prev) {
				stats.Converged++
				continue
			}
			failures = append(failures, Failure{
				Key:        key,
				Resolution: res,
				Reason:     fmt.Sprintf("still %s with %d differing fields", next.Kind, distance(next)),
			})
			continue
		}

		if stillThere && v.same(prev, next) {
			stats.Unchanged++
			continue
		}
		reason := "difference disappeared"
		if stillThere {
			reason = fmt.Sprintf("difference changed from %s to %s", prev.Kind, next.Kind)
			if prev.Kind == next.Kind {
				reason = "differing fields changed"
			}
		}
		failures = append(failures, Failure{Key: key, Resolution: res, Reason: reason})
	}

	stats.Failed = len(failures)
	v.logger.Infof("Verification complete: %d keys verified, %d converged, %d unchanged, %d failed",
		stats.KeysVerified, stats.Converged, stats.Unchanged, stats.Failed)

	if len(failures) > 0 {
		for _, f := range failures {
			v.logger.Errorf("Verification FAILED for key %q (%s): %s", f.Key, f.Resolution, f.Reason)
		}
		return stats, &ConvergenceError{Failures: failures}
	}
	return stats, nil
}

func (v *Verifier) same(a, b differ.Difference) bool {
	if v.method == MethodSHA256 {
		return Fingerprint(a) == Fingerprint(b)
	}
	return a.Kind == b.Kind && len(a.FieldDiffs) == len(b.FieldDiffs)
}

// distance is how far a difference is from convergence: every field for a missing
// record, the differing fields for a mismatch.
func distance(d differ.Difference) int {
	if d.Kind == differ.Mismatch {
		return len(d.FieldDiffs)
	}
	return len(record.FieldNames)
}

// Fingerprint is a sha256 over the kind and the sorted field diffs of d.
func Fingerprint(d differ.Difference) string {
	lines := make([]string, 0, len(d.FieldDiffs))
	for _, fd := range d.FieldDiffs {
		lines = append(lines, fmt.Sprintf("%s=%v|%v", fd.Field, fd.FrontendValue, fd.BackendValue))
	}
	sort.Strings(lines)

	h := sha256.New()
	h.Write([]byte(d.Kind))
	for _, line := range lines {
		h.Write([]byte{'\n'})
		h.Write([]byte(line))
	}
	return hex.EncodeToString(h.Sum(nil))
}
