// Package temporal provides the Temporal integration behind asynchronous
// licence resolution.
//
// The coordinator hands identifiers to a LicenceResolverClient, which starts
// one LicenceBatchWorkflow per batch under the ID "licence-batch-<ULID>".
// The workflow (package workflows) looks the identifiers up in cycles,
// backing off between them, and reports each cycle's results through the
// DeliverCallback activity (package activities). Identifiers still pending
// after the last cycle are reported once more as maxed.
//
// # Client Setup
//
//	c, err := temporal.NewClient(temporal.ClientConfig{
//	    HostPort:  "localhost:7233",
//	    Namespace: "oa-compliance",
//	    TaskQueue: "licence-resolver",
//	})
//	resolver := temporal.NewLicenceResolverClient(c, cfg, settings)
//	batchID, err := resolver.Submit(ctx, "", items, time.Now().Add(10*time.Second))
//	progress, err := resolver.BatchProgress(ctx, batchID)
//
// Batch IDs are never reused. Submitting a batch ID that already exists
// returns that ID without starting a second workflow, which makes a retried
// dispatch safe.
//
// # Worker Setup
//
//	manager, err := temporal.NewWorkerManager(c, temporal.DefaultWorkerConfig("licence-resolver"))
//	manager.RegisterLicenceBatchWorkflow(workflows.LicenceBatchWorkflow)
//	manager.RegisterActivity(activities.NewLicenceActivities(oagClient, callbackHandler))
//	err = manager.Start(ctx)
//
// # Error Handling
//
// Client errors are wrapped in *TemporalError and classified against the
// package's sentinel errors:
//
//	if temporal.IsWorkflowNotFound(err) {
//	    // history past retention; the batch is long finished
//	}
package temporal
