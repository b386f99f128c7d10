// Package broadcaster fans a signed transaction out to a chain's RPC
// endpoints in parallel and classifies the aggregate outcome.
package broadcaster

import (
	"context"
	"strings"
	"time"

	"github.com/warp-contracts/tempo-watchtower/src/rpcfleet"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"
)

// Outcome is the aggregate classification of one broadcast attempt.
// Priority: fatal > accepted > nonce-too-low > transient.
type Outcome int

const (
	OutcomeFatal Outcome = iota
	OutcomeAccepted
	// OutcomeNonceTooLow is a claim, not a verdict: the scheduler
	// confirms it against the watcher's nonce observation before
	// marking the row stale, since an endpoint may be lagging.
	OutcomeNonceTooLow
	OutcomeTransient
)

// Result is what Scheduler acts on after a broadcast attempt.
type Result struct {
	Outcome Outcome
	Error   string // joined per-endpoint messages, empty on clean accept
}

// Broadcast submits rawTx to min(fanout, len(endpoints)) of chain's
// endpoints, rotated to start at endpoints[attempt % total], running
// all of them in parallel under a shared deadline. It returns only
// once every submission has completed or the deadline elapses; a
// first success never cancels the others, since a peer's "already
// known" response is itself useful classification signal.
func Broadcast(ctx context.Context, chain *rpcfleet.ChainRpc, rawTx []byte, fanout int, timeout time.Duration, attempt int32) Result {
	endpoints := chain.HealthyEndpoints(int(attempt))
	if len(endpoints) == 0 {
		return Result{Outcome: OutcomeTransient, Error: "no rpc endpoints"}
	}

	if fanout < 1 {
		fanout = 1
	}
	if fanout > len(endpoints) {
		fanout = len(endpoints)
	}
	targets := endpoints[:fanout]

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		class classifiedError
		err   string
	}
	outcomes := make([]outcome, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range targets {
		i, ep := i, ep
		g.Go(func() error {
			ep.Throttle()
			err := submit(gctx, ep, rawTx)
			if err == nil {
				ep.RecordSuccess()
				outcomes[i] = outcome{class: classAccepted}
				return nil
			}

			msg := err.Error()
			class := classifyError(msg)
			if class == classTransient {
				ep.RecordFailure()
			} else {
				ep.RecordSuccess()
			}
			outcomes[i] = outcome{class: class, err: msg}
			return nil
		})
	}
	// errgroup's inner functions never return an error themselves (every
	// failure is captured in outcomes), so this can't fail.
	_ = g.Wait()

	var accepted bool
	var fatalMsgs, nonceMsgs, transientMsgs []string
	for _, o := range outcomes {
		switch o.class {
		case classAccepted:
			accepted = true
		case classFatal:
			fatalMsgs = append(fatalMsgs, o.err)
		case classNonceTooLow:
			nonceMsgs = append(nonceMsgs, o.err)
		default:
			if o.err != "" {
				transientMsgs = append(transientMsgs, o.err)
			}
		}
	}

	if len(fatalMsgs) > 0 {
		return Result{Outcome: OutcomeFatal, Error: strings.Join(fatalMsgs, "; ")}
	}
	if accepted {
		return Result{Outcome: OutcomeAccepted}
	}
	if len(nonceMsgs) > 0 {
		return Result{Outcome: OutcomeNonceTooLow, Error: strings.Join(nonceMsgs, "; ")}
	}
	return Result{Outcome: OutcomeTransient, Error: strings.Join(transientMsgs, "; ")}
}

func submit(ctx context.Context, ep *rpcfleet.Endpoint, rawTx []byte) error {
	var result string
	return ep.RPC.CallContext(ctx, &result, "eth_sendRawTransaction", hexutil.Encode(rawTx))
}

type classifiedError int

const (
	classAccepted classifiedError = iota
	classFatal
	classNonceTooLow
	classTransient
)

// classifyError buckets an endpoint error by message substring:
// already-known responses are accepted, recognizably malformed/invalid
// ones are fatal, nonce-too-low is reported separately for the
// scheduler to confirm, everything else is transient. Insufficient
// funds stays transient: a sender may be topped up before the window
// closes, and expiry terminates the row anyway.
func classifyError(message string) classifiedError {
	msg := strings.ToLower(message)

	for _, s := range []string{"already known", "known transaction", "already imported", "already exists"} {
		if strings.Contains(msg, s) {
			return classAccepted
		}
	}

	if strings.Contains(msg, "nonce too low") {
		return classNonceTooLow
	}

	for _, s := range []string{"invalid", "malformed", "signature", "fee payer", "expired", "nonce key"} {
		if strings.Contains(msg, s) {
			return classFatal
		}
	}

	return classTransient
}
