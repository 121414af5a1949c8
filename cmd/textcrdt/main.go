// Command textcrdt is a small demo CLI that exercises the textcrdt package:
// it spins up a handful of in-process replicas sharing one toy document,
// runs a scripted sequence of inserts and deletes against them out of
// order, and prints whether they converged.
//
// It's a demonstration harness, not a production editor: the "document" is
// just a side table of run text kept by the host program, exactly as the
// package's own contract expects (the package itself never stores a
// character).
package main

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/arnavgarg/textcrdt"
)

var logger *slog.Logger

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "textcrdt",
		Short: "Demo harness for the textcrdt replicated text core",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every op as it's integrated")

	cmd.AddCommand(simulateCmd())
	cmd.AddCommand(inspectCmd())
	return cmd
}

func simulateCmd() *cobra.Command {
	var numReplicas int
	var seed int64
	var initial string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted edit sequence across several replicas and report convergence",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(numReplicas, seed, initial)
		},
	}
	cmd.Flags().IntVarP(&numReplicas, "replicas", "n", 3, "number of replicas to simulate")
	cmd.Flags().Int64Var(&seed, "seed", 1, "PRNG seed for the edit script and delivery order")
	cmd.Flags().StringVar(&initial, "initial", "hello world", "initial document text, inserted by replica 1")
	return cmd
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Build a single replica, insert some text, and print its run tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := uuid.New()
			id := textcrdt.ReplicaId(binary.BigEndian.Uint64(raw[:8]))
			r := textcrdt.New(id, 0)
			r.Inserted(0, 5)
			fmt.Println(r.Debug())
			fmt.Println(r.DebugAsBtree())
			return nil
		},
	}
}

// runKey identifies a run's origin from the CLI's point of view: enough to
// look its text up in a runText side table. A real deployment would send
// this text alongside the Insertion op itself; simulating that wire
// transfer isn't this demo's job.
type runKey struct {
	replica textcrdt.ReplicaId
	runTs   textcrdt.RunTs
}

type host struct {
	replica *textcrdt.Replica
}

// render reconstructs h's current document by walking its replica's
// visible runs in order and slicing the cached text for each one's origin.
func render(r *textcrdt.Replica, texts map[runKey]string) string {
	var b strings.Builder
	for _, ref := range r.VisibleRuns() {
		full := texts[runKey{ref.Replica, ref.RunTs}]
		b.WriteString(full[ref.Lo:ref.Hi])
	}
	return b.String()
}

func (h *host) insertLocal(texts map[runKey]string, at textcrdt.Length, text string) textcrdt.Insertion {
	ins := h.replica.Inserted(at, uint64(len(text)))
	if !ins.IsNoop() {
		texts[runKey{ins.Replica(), ins.RunTs()}] = text
	}
	return ins
}

func runSimulation(numReplicas int, seed int64, initial string) error {
	if numReplicas < 2 {
		return fmt.Errorf("need at least 2 replicas to demonstrate convergence, got %d", numReplicas)
	}

	rng := rand.New(rand.NewSource(seed))
	texts := make(map[runKey]string)
	hosts := make([]*host, numReplicas)
	for i := range hosts {
		hosts[i] = &host{replica: textcrdt.New(textcrdt.ReplicaId(i+1), 0)}
	}

	logger.Info("seeding document", "initial_text", initial, "replicas", numReplicas)
	seedInsertion := hosts[0].insertLocal(texts, 0, initial)
	for i, h := range hosts {
		if i == 0 {
			continue
		}
		h.replica.IntegrateInsertion(seedInsertion)
	}

	var pending []func()
	for step := 0; step < numReplicas*4; step++ {
		from := rng.Intn(numReplicas)
		h := hosts[from]
		length := h.replica.Len()

		if length > 0 && rng.Intn(3) == 0 {
			start := Length(rng.Intn(int(length)))
			end := start + 1 + Length(rng.Intn(int(length-start)))
			d := h.replica.Deleted(start, end)
			logger.Debug("local delete", "replica", h.replica.ID(), "start", start, "end", end)
			pending = append(pending, deliverDeletion(hosts, from, d))
			continue
		}

		at := Length(rng.Intn(int(length) + 1))
		text := string(rune('a' + rng.Intn(26)))
		ins := h.insertLocal(texts, at, text)
		logger.Debug("local insert", "replica", h.replica.ID(), "at", at, "text", text)
		pending = append(pending, deliverInsertion(hosts, from, ins))
	}

	rng.Shuffle(len(pending), func(i, j int) { pending[i], pending[j] = pending[j], pending[i] })
	for _, deliver := range pending {
		deliver()
	}
	for _, h := range hosts {
		drainBacklog(h.replica)
	}

	reference := render(hosts[0].replica, texts)
	converged := true
	for _, h := range hosts[1:] {
		if render(h.replica, texts) != reference {
			converged = false
		}
	}

	fmt.Printf("replicas: %d\n", numReplicas)
	for _, h := range hosts {
		fmt.Printf("  replica %d: %q (backlog: %d insertions, %d deletions)\n",
			h.replica.ID(), render(h.replica, texts), h.replica.NumBackloggedInsertions(), h.replica.NumBackloggedDeletions())
	}
	if converged {
		fmt.Println("converged: all replicas agree")
	} else {
		fmt.Println("converged: NO — replicas disagree")
	}
	return nil
}

// deliverInsertion returns a thunk that integrates ins into every other
// host, deferred so the simulation can shuffle delivery order across all
// of a step's ops.
func deliverInsertion(hosts []*host, from int, ins textcrdt.Insertion) func() {
	return func() {
		for i, h := range hosts {
			if i == from {
				continue
			}
			before := h.replica.NumBackloggedInsertions()
			h.replica.IntegrateInsertion(ins)
			if h.replica.NumBackloggedInsertions() > before {
				logger.Debug("insertion backlogged", "at_replica", h.replica.ID())
			}
		}
	}
}

// drainBacklog releases every backlogged insertion and deletion it can,
// alternating between the two since releasing one can unblock the other,
// until a full pass over both releases nothing new.
func drainBacklog(r *textcrdt.Replica) {
	for {
		progressed := false
		if _, ok := r.BackloggedInsertions().Next(); ok {
			progressed = true
		}
		if _, ok := r.BackloggedDeletions().Next(); ok {
			progressed = true
		}
		if !progressed {
			return
		}
	}
}

func deliverDeletion(hosts []*host, from int, d textcrdt.Deletion) func() {
	return func() {
		for i, h := range hosts {
			if i == from {
				continue
			}
			before := h.replica.NumBackloggedDeletions()
			h.replica.IntegrateDeletion(d)
			if h.replica.NumBackloggedDeletions() > before {
				logger.Debug("deletion backlogged", "at_replica", h.replica.ID())
			}
		}
	}
}

// Length is a local alias purely for readability in this file's arithmetic;
// it's the same uint64 the package itself uses.
type Length = textcrdt.Length
