package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/spec-kit/visit-verification/internal/domain"
	"github.com/spec-kit/visit-verification/internal/repository"
	apperrors "github.com/spec-kit/visit-verification/pkg/util/errorutil"
)

func TestProperty_AtMostOneIssuedPerPair(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t)
		members := []string{"SHA01", "SHA02"}
		purposes := []domain.CodePurpose{domain.PurposeHospitalVisit, domain.PurposePasswordReset}
		issued := map[string][]string{}
		now := t0

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			now = now.Add(time.Duration(rapid.IntRange(0, 400).Draw(rt, "gapSec")) * time.Second)
			member := rapid.SampledFrom(members).Draw(rt, "member")

			if rapid.Bool().Draw(rt, "issue") {
				purpose := rapid.SampledFrom(purposes).Draw(rt, "purpose")
				res, err := h.codes.Issue(context.Background(), IssueInput{MemberID: member, Purpose: purpose}, now)
				if err != nil && !errors.Is(err, apperrors.ErrRateLimited) {
					rt.Fatalf("issue: %v", err)
				}
				if err == nil && purpose == domain.PurposeHospitalVisit {
					issued[member] = append(issued[member], res.Value)
				}
			} else if values := issued[member]; len(values) > 0 {
				value := rapid.SampledFrom(values).Draw(rt, "value")
				_, err := h.authorize(member, value, now)
				if err != nil &&
					!errors.Is(err, apperrors.ErrCodeExpired) &&
					!errors.Is(err, apperrors.ErrCodeAlreadyUsed) {
					rt.Fatalf("authorize: %v", err)
				}
			}

			for _, m := range members {
				for _, p := range purposes {
					var codes []domain.VerificationCode
					_ = h.store.InTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
						var err error
						codes, err = tx.Codes().ListByMember(ctx, m, p)
						return err
					})
					n := 0
					for _, c := range codes {
						if c.State == domain.CodeStateIssued {
							n++
						}
					}
					if n > 1 {
						rt.Fatalf("%d ISSUED codes for %s/%s", n, m, p)
					}
				}
			}
		}
	})
}

func TestProperty_ConsumedCodesBackExactlyOneVisit(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t)
		res := h.issue(t, "SHA01", t0)
		attempts := rapid.IntRange(1, 6).Draw(rt, "attempts")
		opened := 0
		for i := 0; i < attempts; i++ {
			offset := time.Duration(rapid.IntRange(0, 600).Draw(rt, "offsetSec")) * time.Second
			if _, err := h.authorize("SHA01", res.Value, t0.Add(offset)); err == nil {
				opened++
			}
		}
		if opened > 1 {
			rt.Fatalf("code opened %d visits", opened)
		}
		state := h.codeState(t, res.Code.ID)
		if opened == 1 && state != domain.CodeStateConsumed {
			rt.Fatalf("visit opened but code is %s", state)
		}
	})
}
