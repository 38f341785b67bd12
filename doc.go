/*
Package rxflow orchestrates clinical medication-refill conversations as a
deterministic workflow: a state machine advances each session through
identity verification, safety evaluation, and backend dispensing, and a
circuit-breaker layer routes anything risky to a human escalation desk.

The package separates the workflow graph (pkg/workflow) from session
execution (pkg/controller) and side-effects (pkg/evaluators, pkg/backend,
pkg/escalation). This hexagonal layout lets the engine run behind any
surface: the bundled HTTP API, the rxflow CLI, or direct embedding.

# Key Properties

  - Deterministic transitions: given the same session and turn input, the
    engine always produces the same next state and audit trail.
  - Safety gates before action: allergy, interaction, controlled-substance,
    and identity checks run before any reservation reaches the pharmacy
    backend, and any escalating verdict halts automation.
  - Durable sessions: state survives process restarts via the Redis
    adapter, with optimistic concurrency and idempotent turn replay.
  - Auditability: every state transition appends one immutable record.

# Usage

Build an App from configuration and feed it conversational turns:

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/rxflow"
		"github.com/aretw0/rxflow/internal/config"
		"github.com/aretw0/rxflow/pkg/domain"
	)

	func main() {
		app, err := rxflow.New(config.Default())
		if err != nil {
			log.Fatal(err)
		}
		defer app.Close()

		out, err := app.ProcessTurn(context.Background(), domain.TurnInput{
			SessionID:  "sess-1",
			Intent:     domain.IntentRequestRefill,
			Confidence: 0.92,
			Entities: map[string]string{
				domain.SlotPatientID: "123456",
				domain.SlotDrugName:  "Lisinopril",
				domain.SlotDose:      "10mg",
				domain.SlotQuantity:  "30",
			},
		})
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("state=%s prompt=%q", out.NextState, out.Prompt)
	}

For an HTTP deployment use app.Handler(), or run the bundled server with
"rxflow serve".
*/
package rxflow
