// Package forgequeue distributes forge requests over NATS so a fleet of
// workers can service them independently of whatever received the HTTP
// request. A publisher sends a Job on the work subject and waits for a
// reply; a Worker pool QueueSubscribes on that subject, so NATS load-balances
// jobs across however many worker processes are listening.
package forgequeue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"crchack/internal/bigint"
	"crchack/internal/crcparam"
	"crchack/internal/forgesvc"
	"crchack/internal/store"
)

// DefaultSubject is the NATS subject forge jobs are published on.
const DefaultSubject = "crchack.forge"

// DefaultQueueGroup is the queue group worker pools subscribe under, so a
// job is delivered to exactly one worker even with many running.
const DefaultQueueGroup = "crchack-workers"

// Job is the wire format of one forge request sent over NATS.
type Job struct {
	Width      uint   `json:"width"`
	Poly       string `json:"poly"`
	Init       string `json:"init"`
	XorOut     string `json:"xor_out"`
	ReflectIn  bool   `json:"reflect_in"`
	ReflectOut bool   `json:"reflect_out"`
	MessageB64 string `json:"message_b64"`
	TargetHex  string `json:"target_hex,omitempty"`
	Bits       []uint `json:"bits,omitempty"`
}

// Result is the wire format of a job's outcome.
type Result struct {
	Success   bool   `json:"success"`
	OutputB64 string `json:"output_b64,omitempty"`
	Flips     []uint `json:"flips,omitempty"`
	ForgeCode int    `json:"forge_code"`
	Error     string `json:"error,omitempty"`
}

// Connect opens a NATS connection, retrying with the client library's own
// reconnect handling once established.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("forgequeue: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("forgequeue: reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return nc, nil
}

// Publisher enqueues forge jobs and waits for their results.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher builds a Publisher. An empty subject uses DefaultSubject.
func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{nc: nc, subject: subject}
}

// Submit publishes job and blocks for a worker's reply, using NATS's
// built-in request/reply inbox subscription.
func (p *Publisher) Submit(ctx context.Context, job Job) (*Result, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	msg, err := p.nc.RequestWithContext(ctx, p.subject, payload)
	if err != nil {
		return nil, fmt.Errorf("request forge job: %w", err)
	}

	var res Result
	if err := json.Unmarshal(msg.Data, &res); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &res, nil
}

// Worker consumes forge jobs from the queue and replies with their results.
type Worker struct {
	nc          *nats.Conn
	subject     string
	queueGroup  string
	store       *store.DB // may be nil; a worker without a store just doesn't record history
	concurrency chan struct{}
}

// WorkerConfig configures a Worker pool.
type WorkerConfig struct {
	Subject     string
	QueueGroup  string
	Concurrency int // max jobs processed at once by this worker process
}

// NewWorker builds a Worker. Zero-value Subject/QueueGroup/Concurrency fall
// back to DefaultSubject/DefaultQueueGroup/4.
func NewWorker(nc *nats.Conn, st *store.DB, cfg WorkerConfig) *Worker {
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	queueGroup := cfg.QueueGroup
	if queueGroup == "" {
		queueGroup = DefaultQueueGroup
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Worker{
		nc:          nc,
		subject:     subject,
		queueGroup:  queueGroup,
		store:       st,
		concurrency: make(chan struct{}, concurrency),
	}
}

// Run subscribes to the work queue and services jobs until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.nc.QueueSubscribe(w.subject, w.queueGroup, w.handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", w.subject, err)
	}
	log.Printf("forgequeue: worker listening on %q, queue group %q", w.subject, w.queueGroup)

	<-ctx.Done()
	return sub.Unsubscribe()
}

func (w *Worker) handle(msg *nats.Msg) {
	w.concurrency <- struct{}{}
	defer func() { <-w.concurrency }()

	var job Job
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		w.reply(msg, Result{ForgeCode: 1, Error: "invalid job: " + err.Error()})
		return
	}

	params, err := paramsFromJob(job)
	if err != nil {
		w.reply(msg, Result{ForgeCode: 1, Error: err.Error()})
		return
	}

	message, err := base64.StdEncoding.DecodeString(job.MessageB64)
	if err != nil {
		w.reply(msg, Result{ForgeCode: 1, Error: "invalid message_b64: " + err.Error()})
		return
	}

	var target *bigint.Bigint
	if job.TargetHex != "" {
		target, err = bigint.FromHex(params.Width, job.TargetHex)
		if err != nil {
			w.reply(msg, Result{ForgeCode: 1, Error: "invalid target_hex: " + err.Error()})
			return
		}
	}

	start := time.Now()
	res, runErr := forgesvc.Run(forgesvc.Request{Params: params, Message: message, Target: target, Bits: job.Bits})
	w.record(job, params, message, start, res, runErr)

	if runErr != nil {
		var insufficient *forgesvc.InsufficientBitsError
		if asInsufficientBitsError(runErr, &insufficient) {
			w.reply(msg, Result{ForgeCode: 6, Error: runErr.Error()})
			return
		}
		w.reply(msg, Result{ForgeCode: 5, Error: runErr.Error()})
		return
	}

	w.reply(msg, Result{
		Success:   true,
		OutputB64: base64.StdEncoding.EncodeToString(res.Message),
		Flips:     res.FlippedBits,
		ForgeCode: 0,
	})
}

func (w *Worker) reply(msg *nats.Msg, res Result) {
	payload, err := json.Marshal(res)
	if err != nil {
		log.Printf("forgequeue: marshal result: %v", err)
		return
	}
	if err := msg.Respond(payload); err != nil {
		log.Printf("forgequeue: reply: %v", err)
	}
}

func (w *Worker) record(job Job, params *crcparam.Params, message []byte, start time.Time, res *forgesvc.Result, runErr error) {
	if w.store == nil {
		return
	}
	run := store.ForgeRun{
		RequestedAt: start.UTC(),
		Params: store.CRCParams{
			Width: params.Width, Poly: params.Poly.ToHex(), Init: params.Init.ToHex(),
			XorOut: params.XorOut.ToHex(), ReflectIn: params.ReflectIn, ReflectOut: params.ReflectOut,
		},
		MessageDigest:  store.Digest(message),
		MessageLength:  uint(len(message)) * 8,
		TargetChecksum: job.TargetHex,
		DurationMicros: time.Since(start).Microseconds(),
	}
	if len(job.Bits) > 0 {
		run.MutableBitCount = len(job.Bits)
	}
	var insufficient *forgesvc.InsufficientBitsError
	switch {
	case runErr == nil:
		run.Success = true
		run.FlipCount = len(res.FlippedBits)
		run.ForgeReturnCode = 0
	case asInsufficientBitsError(runErr, &insufficient):
		run.ForgeReturnCode = 6
	default:
		run.ForgeReturnCode = 5
	}
	if err := w.store.RecordRun(context.Background(), run); err != nil {
		log.Printf("forgequeue: recording run failed: %v", err)
	}
}

func asInsufficientBitsError(err error, target **forgesvc.InsufficientBitsError) bool {
	e, ok := err.(*forgesvc.InsufficientBitsError)
	if ok {
		*target = e
	}
	return ok
}

func paramsFromJob(job Job) (*crcparam.Params, error) {
	if job.Width == 0 {
		return crcparam.Default(), nil
	}
	poly, err := bigint.FromHex(job.Width, job.Poly)
	if err != nil {
		return nil, fmt.Errorf("invalid poly: %w", err)
	}
	initVal := bigint.New(job.Width)
	if job.Init != "" {
		if initVal, err = bigint.FromHex(job.Width, job.Init); err != nil {
			return nil, fmt.Errorf("invalid init: %w", err)
		}
	}
	xorOut := bigint.New(job.Width)
	if job.XorOut != "" {
		if xorOut, err = bigint.FromHex(job.Width, job.XorOut); err != nil {
			return nil, fmt.Errorf("invalid xor_out: %w", err)
		}
	}
	return crcparam.New(job.Width, poly, initVal, xorOut, job.ReflectIn, job.ReflectOut)
}
