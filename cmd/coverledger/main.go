package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"CoverLedger/internal/core"
	"CoverLedger/internal/event"
	"CoverLedger/internal/ingestion"
	"CoverLedger/internal/observability"
	"CoverLedger/internal/persistence"
	"CoverLedger/internal/pricing"
	"CoverLedger/internal/projection"
	"CoverLedger/internal/query"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("INFO: CoverLedger starting...")

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: load config: %v", err)
	}

	protocolCfg, err := cfg.ProtocolConfig()
	if err != nil {
		log.Fatalf("FATAL: protocol config: %v", err)
	}

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Fatalf("FATAL: postgres open: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("FATAL: postgres ping: %v", err)
	}
	log.Println("INFO: Postgres connected")

	// --- Run SQL migrations ---
	migrator := persistence.NewMigrator(db, cfg.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		log.Fatalf("FATAL: run migrations: %v", err)
	}
	log.Println("INFO: migrations applied")

	snapMgr := persistence.NewSnapshotManager(db)

	// --- Recovery: load snapshot + replay ---
	startSequence := int64(0)

	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		log.Printf("WARN: failed to load snapshot: %v", err)
	}
	if snap != nil {
		startSequence = snap.Sequence + 1
		log.Printf("INFO: loaded snapshot at sequence %d", snap.Sequence)
	} else {
		log.Println("INFO: no snapshot found, cold start from sequence 0")
	}

	// --- Channels ---
	// The persist channel blocks (backpressure), the projection channel drops.
	persistCoreChan := make(chan core.CoreOutput, cfg.PersistChanSize)
	projectionCoreChan := make(chan core.CoreOutput, cfg.ProjectionChanSize)

	// Bridge channels for the workers (avoids import cycles)
	persistWorkerChan := make(chan persistence.CoreOutput, cfg.PersistChanSize)
	projectionWorkerChan := make(chan projection.ProjectionOutput, cfg.ProjectionChanSize)

	// --- Postgres idempotency checker ---
	dbChecker := persistence.NewPostgresIdempotencyChecker(db)

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Domain engines + Deterministic Core ---
	protocol, err := core.NewProtocol(protocolCfg)
	if err != nil {
		log.Fatalf("FATAL: build protocol: %v", err)
	}

	deterministicCore := core.NewDeterministicCore(
		startSequence,
		protocol,
		persistCoreChan,
		projectionCoreChan,
		dbChecker,
		metrics,
	)

	// --- Snapshot Restore ---
	// Snapshots carry bookkeeping only (sequence, hash tip, partition
	// cursors, dedup keys); domain state is rebuilt by replaying the log.
	if snap != nil {
		restoreBookkeeping(deterministicCore, snap)
		if len(snap.IdempotencyKeys) > 0 {
			log.Printf("INFO: warming LRU with %d keys from snapshot", len(snap.IdempotencyKeys))
			deterministicCore.WarmLRU(snap.IdempotencyKeys)
		}
	}

	// --- Event Replay ---
	// Domain engines start empty, so replay always runs from sequence 0 to
	// rebuild them; events up to the snapshot are already in the dedup set
	// and only advance the engines, not the log.
	replayStart := time.Now()
	replayCount, err := replayEventsFromLog(ctx, snapMgr, deterministicCore)
	if err != nil {
		log.Fatalf("FATAL: event replay failed: %v", err)
	}
	if replayCount > 0 {
		metrics.ReplayDuration.Set(time.Since(replayStart).Seconds())
		log.Printf("INFO: replayed %d events in %s (sequence now at %d)",
			replayCount, time.Since(replayStart), deterministicCore.GetSequence())
	}
	metrics.ReplayEventsTotal.Add(float64(replayCount))

	// --- State Hash Verification ---
	if snap != nil {
		if err := verifyStateHash(ctx, deterministicCore, snap, snapMgr); err != nil {
			log.Fatalf("FATAL: %v", err)
		}
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("FATAL: nats connect: %v", err)
	}
	defer nc.Close()
	log.Println("INFO: NATS connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure NATS streams: %v", err)
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure outbound stream: %v", err)
	}

	// --- Event channel from NATS to core ---
	rawEventChan := make(chan ingestion.RawEvent, 4096)
	natsSubscriber := ingestion.NewNATSSubscriber(js, rawEventChan, metrics)
	if err := natsSubscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		log.Fatalf("FATAL: nats subscribe: %v", err)
	}

	// --- Outbound publisher ---
	publishChan := make(chan ingestion.PublishableEvent, 4096)
	outboundPublisher := ingestion.NewOutboundPublisher(js, publishChan)

	// --- Query API ---
	queryService := query.NewQueryService(db, pricing.DefaultConfig(), metrics)

	apiMux := http.NewServeMux()
	apiMux.Handle("/v1/", queryService.Router())
	apiMux.HandleFunc("/healthz", healthChecker.LivenessHandler)
	apiMux.HandleFunc("/readyz", healthChecker.ReadinessHandler)
	apiServer := &http.Server{Addr: cfg.HTTPAddr, Handler: apiMux}

	// --- Start goroutines ---
	errChan := make(chan error, 10)

	// 1. Persistence worker
	persistWorker := persistence.NewPersistenceWorker(db, persistWorkerChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics)
	go func() {
		errChan <- persistWorker.Run(ctx)
	}()

	// 2. Projection worker
	projWorker := projection.NewProjectionWorker(db, projectionWorkerChan, metrics)
	go func() {
		errChan <- projWorker.Run(ctx)
	}()

	// 3. Outbound publisher
	go func() {
		errChan <- outboundPublisher.Run(ctx)
	}()

	// 4. Core output bridge
	go func() {
		bridgeCoreOutputs(ctx, persistCoreChan, projectionCoreChan, persistWorkerChan, projectionWorkerChan, publishChan, metrics)
	}()

	// 5. NATS → Core ingestion loop
	go func() {
		runIngestionLoop(ctx, rawEventChan, deterministicCore, metrics)
	}()

	// 6. HTTP query API
	go func() {
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			apiServer.Shutdown(shutCtx)
		}()
		log.Printf("INFO: query API listening on %s", cfg.HTTPAddr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("query API: %w", err)
		}
	}()

	// 7. Periodic snapshot creation
	go func() {
		runPeriodicSnapshots(ctx, deterministicCore, snapMgr, int(cfg.SnapshotInterval), metrics)
	}()

	// 8. Prometheus metrics server
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metricsMux,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		log.Printf("INFO: Metrics server listening on %s/metrics", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	// 9. Channel utilization sampling
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.SetChannelMetrics("persist", len(persistCoreChan), cap(persistCoreChan))
				metrics.SetChannelMetrics("projection", len(projectionCoreChan), cap(projectionCoreChan))
				metrics.SetChannelMetrics("publish", len(publishChan), cap(publishChan))
			}
		}
	}()

	// Mark service as ready after all goroutines started
	healthChecker.SetReady(true)

	log.Printf("INFO: CoverLedger ready (sequence=%d, http=%s, metrics=%s)",
		deterministicCore.GetSequence(), cfg.HTTPAddr, cfg.MetricsAddr)

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		log.Printf("INFO: received signal %s, shutting down...", sig)
	case err := <-errChan:
		log.Printf("ERROR: goroutine failed: %v, shutting down...", err)
	}

	// --- Graceful shutdown ---
	cancel()

	natsSubscriber.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	close(persistWorkerChan)
	close(projectionWorkerChan)
	close(publishChan)

	// Take a final snapshot so the next start replays less
	if err := takeSnapshot(shutdownCtx, deterministicCore, snapMgr, metrics); err != nil {
		log.Printf("ERROR: final snapshot failed: %v", err)
	} else {
		log.Println("INFO: final snapshot saved")
	}

	log.Println("INFO: CoverLedger shutdown complete")
}

// bridgeCoreOutputs converts core.CoreOutput into the persistence, outbound,
// and projection formats. This avoids import cycles between core and the
// worker packages.
func bridgeCoreOutputs(
	ctx context.Context,
	persistIn <-chan core.CoreOutput,
	projectionIn <-chan core.CoreOutput,
	persistOut chan<- persistence.CoreOutput,
	projectionOut chan<- projection.ProjectionOutput,
	publishOut chan<- ingestion.PublishableEvent,
	metrics *observability.Metrics,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case output, ok := <-persistIn:
			if !ok {
				return
			}

			var poolID *string
			if output.Envelope.PoolID != nil {
				s := *output.Envelope.PoolID
				poolID = &s
			}

			// Convert [32]byte arrays to []byte slices for persistence
			stateHash := output.Envelope.StateHash[:]
			prevHash := output.Envelope.PrevHash[:]

			persistOut <- persistence.CoreOutput{
				EventRow: persistence.EventRow{
					Sequence:       output.Envelope.Sequence,
					EventType:      output.Envelope.EventType.String(),
					IdempotencyKey: output.Envelope.IdempotencyKey,
					PoolID:         poolID,
					Payload:        output.Envelope.Payload,
					StateHash:      stateHash,
					PrevHash:       prevHash,
					Timestamp:      output.Envelope.Timestamp,
					SourceSequence: output.Envelope.SourceSequence,
				},
				EmittedAt: time.Now(),
			}

			// Also publish outbound
			select {
			case publishOut <- ingestion.PublishableEvent{
				Sequence:       output.Envelope.Sequence,
				EventType:      output.Envelope.EventType.String(),
				IdempotencyKey: output.Envelope.IdempotencyKey,
				PoolID:         poolID,
				Payload:        output.Envelope.Payload,
				StateHash:      stateHash,
				Timestamp:      output.Envelope.Timestamp,
			}:
			default:
				// Drop if publish channel is full
				metrics.PublishDrops.Inc()
			}

		case output, ok := <-projectionIn:
			if !ok {
				return
			}

			if output.Projection == nil {
				continue
			}

			select {
			case projectionOut <- *output.Projection:
			default:
				// Drop if projection channel is full
				metrics.ProjectionDrops.WithLabelValues(output.Projection.EventType).Inc()
			}
		}
	}
}

// runIngestionLoop reads raw events from NATS and feeds them to the core.
// The shell validates, parses, and converts raw events before sending them
// to the deterministic core.
func runIngestionLoop(ctx context.Context, rawChan <-chan ingestion.RawEvent, deterministicCore *core.DeterministicCore, metrics *observability.Metrics) {
	// Build subject-prefix → event-type lookup from DefaultSubjects.
	// Subjects use ">" wildcard, so we match by prefix (strip trailing ".>").
	subjectToType := make(map[string]string)
	for _, cfg := range ingestion.DefaultSubjects() {
		prefix := cfg.Subject
		if len(prefix) > 2 && prefix[len(prefix)-2:] == ".>" {
			prefix = prefix[:len(prefix)-2]
		}
		subjectToType[prefix] = cfg.EventType
	}

	// Messages are acked after being parsed and handed to the typed
	// channel, NOT after core processing. This prevents AckWait expiry
	// during slow processing and propagates backpressure via the channel.
	typedEventChan := make(chan ingestedEvent, 4096)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-rawChan:
				if !ok {
					close(typedEventChan)
					return
				}

				eventType := resolveEventType(raw.Subject, subjectToType)
				if eventType == "" {
					log.Printf("WARN: unknown NATS subject: %s", raw.Subject)
					raw.AckFunc() // Ack invalid events to avoid redelivery loop
					continue
				}

				evt, err := ingestion.ParseRawEvent(raw, eventType)
				if err != nil {
					log.Printf("WARN: parse event failed (subject=%s): %v", raw.Subject, err)
					raw.AckFunc() // Ack unparseable events, they never become valid
					continue
				}

				// Blocking send to typed channel — backpressure propagates to NATS
				select {
				case typedEventChan <- ingestedEvent{evt: evt, receivedAt: raw.Timestamp}:
					raw.AckFunc() // Ack AFTER successful channel send
				case <-ctx.Done():
					raw.NakFunc()
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-typedEventChan:
			if !ok {
				return
			}

			if err := deterministicCore.ProcessEvent(in.evt); err != nil {
				log.Printf("ERROR: core.ProcessEvent failed (type=%s, key=%s): %v",
					in.evt.EventType(), in.evt.IdempotencyKey(), err)
				continue
			}
			if !in.receivedAt.IsZero() {
				metrics.IngestToApply.WithLabelValues(in.evt.EventType().String()).
					Observe(time.Since(in.receivedAt).Seconds())
			}
		}
	}
}

type ingestedEvent struct {
	evt        event.Event
	receivedAt time.Time
}

// resolveEventType finds the event type for a NATS subject by matching the longest prefix.
func resolveEventType(subject string, prefixMap map[string]string) string {
	bestMatch := ""
	bestType := ""
	for prefix, evtType := range prefixMap {
		if len(subject) >= len(prefix) && subject[:len(prefix)] == prefix {
			if len(prefix) > len(bestMatch) {
				bestMatch = prefix
				bestType = evtType
			}
		}
	}
	return bestType
}

// --- Snapshot Restore & Replay ---

// restoreBookkeeping restores the core's sequence, hash tip, partition
// cursors, and dedup keys from a snapshot.
func restoreBookkeeping(deterministicCore *core.DeterministicCore, snap *persistence.SnapshotData) {
	coreSnap := &core.SnapshotState{
		Sequence:        snap.Sequence,
		SequenceState:   snap.SequenceState,
		IdempotencyKeys: snap.IdempotencyKeys,
	}
	copy(coreSnap.StateHash[:], snap.StateHash)

	deterministicCore.RestoreFromSnapshot(coreSnap)
	log.Printf("INFO: restored core bookkeeping from snapshot at sequence %d", snap.Sequence)
}

// replayEventsFromLog replays the whole event log through the core to
// rebuild the domain engines. Events already covered by the snapshot are
// deduped, so they advance the engines without re-emitting log rows.
func replayEventsFromLog(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	deterministicCore *core.DeterministicCore,
) (int64, error) {
	const batchSize = 1000
	var totalReplayed int64
	fromSequence := int64(0)

	for {
		events, err := snapMgr.LoadEventsFrom(ctx, fromSequence, batchSize)
		if err != nil {
			return totalReplayed, fmt.Errorf("load events from seq %d: %w", fromSequence, err)
		}

		if len(events) == 0 {
			break
		}

		for _, evtRow := range events {
			typedEvt, err := ingestion.ParseStoredEvent(evtRow.EventType, evtRow.Payload)
			if err != nil {
				return totalReplayed, fmt.Errorf("decode event at seq %d: %w", evtRow.Sequence, err)
			}

			if err := deterministicCore.ReplayEvent(typedEvt); err != nil {
				return totalReplayed, fmt.Errorf("replay event at seq %d: %w", evtRow.Sequence, err)
			}

			totalReplayed++
		}

		fromSequence = events[len(events)-1].Sequence + 1
	}

	return totalReplayed, nil
}

// --- Snapshot Helpers ---

// runPeriodicSnapshots takes snapshots every N events.
func runPeriodicSnapshots(
	ctx context.Context,
	deterministicCore *core.DeterministicCore,
	snapMgr *persistence.SnapshotManager,
	interval int,
	metrics *observability.Metrics,
) {
	if interval <= 0 {
		interval = 100_000
	}

	lastSnapshotSeq := deterministicCore.GetSequence()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentSeq := deterministicCore.GetSequence()
			if currentSeq-lastSnapshotSeq >= int64(interval) {
				if err := takeSnapshot(ctx, deterministicCore, snapMgr, metrics); err != nil {
					log.Printf("WARN: periodic snapshot failed: %v", err)
				} else {
					lastSnapshotSeq = currentSeq
					log.Printf("INFO: periodic snapshot at sequence %d", currentSeq)
				}
			}
		}
	}
}

// takeSnapshot captures the core's bookkeeping state and persists it.
func takeSnapshot(
	ctx context.Context,
	deterministicCore *core.DeterministicCore,
	snapMgr *persistence.SnapshotManager,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	coreSnap := deterministicCore.CreateSnapshotState()
	if coreSnap.Sequence < 0 {
		return nil // nothing applied yet
	}

	snapData := &persistence.SnapshotData{
		Sequence:        coreSnap.Sequence,
		StateHash:       coreSnap.StateHash[:],
		SequenceState:   coreSnap.SequenceState,
		IdempotencyKeys: coreSnap.IdempotencyKeys,
		CreatedAt:       time.Now(),
	}

	if err := snapMgr.SaveSnapshot(ctx, snapData); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	// Mark as verified immediately (we just created it from live state)
	if err := snapMgr.MarkVerified(ctx, snapData.Sequence); err != nil {
		log.Printf("WARN: mark snapshot verified failed: %v", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotLastSeq.Set(float64(snapData.Sequence))
		if raw, err := json.Marshal(snapData); err == nil {
			metrics.SnapshotSizeBytes.Set(float64(len(raw)))
		}
	}

	return nil
}

// verifyStateHash compares the replayed hash tip against the snapshot's.
func verifyStateHash(ctx context.Context, deterministicCore *core.DeterministicCore, snap *persistence.SnapshotData, snapMgr *persistence.SnapshotManager) error {
	head, err := snapMgr.GetLatestSequence(ctx)
	if err != nil {
		return fmt.Errorf("latest sequence: %w", err)
	}
	if head != snap.Sequence {
		// Events past the snapshot moved the hash tip; nothing to compare.
		return nil
	}

	var expectedHash [32]byte
	copy(expectedHash[:], snap.StateHash)
	actualHash := deterministicCore.GetStateHash()
	if expectedHash != actualHash {
		return fmt.Errorf("state hash mismatch after restore — expected %x, got %x", expectedHash, actualHash)
	}
	log.Println("INFO: state hash verified after snapshot restore")
	return nil
}
