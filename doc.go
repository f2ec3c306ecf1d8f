/*
Package dataset is a client for Cloud Datastore built directly on the v1 RPC API.

repository https://github.com/mercari/dataset

Let's read https://cloud.google.com/datastore/docs/ for the data model.
Keys, entities and queries are plain local values; nothing talks to the service
until a Dataset method is called, and every Dataset method issues exactly one RPC.


Basic usage

Create a Dataset with New. The project id is taken from WithProjectID, then from the
DATASTORE_PROJECT_ID, DATASTORE_DATASET, GOOGLE_CLOUD_PROJECT, GCLOUD_PROJECT and
PROJECT_ID environment variables, then from the GCE metadata server.
When DATASTORE_EMULATOR_HOST is set, the client connects to the emulator without credentials.

	ds, err := dataset.New(ctx, dataset.WithProjectID("my-project"))
	if err != nil {
		panic(err)
	}
	defer ds.Close()

	task := ds.Entity("Task", nil, func(e *dataset.Entity) {
		e.Set("description", dataset.StringValue("Learn Cloud Datastore"))
	})
	_, err = ds.Save(ctx, task)

After Save, entities saved with an incomplete key carry the key allocated by the service.
Keys read from the service are frozen; use Key.Clone to get a mutable copy.


Queries

Query is a mutable builder. Every method returns the query itself.

	q := ds.Query("Task").
		Where("done", "=", false).
		Where("priority", ">=", 4).
		Order("priority", "desc").
		Limit(10)
	res, err := ds.Run(ctx, q)

Run returns one batch. QueryResults.Next fetches the following batch from the batch
cursor, and Dataset.Iterate walks every batch for you.
The "~" operator is a has-ancestor filter, the same as Query.Ancestor.


Transactions

Reads inside a Transaction are sent immediately with the transaction id.
Writes are buffered until Commit.

	err := ds.RunInTransaction(ctx, func(tx *dataset.Transaction) error {
		e, err := tx.Find(ctx, key)
		if err != nil {
			return err
		}
		...
		return tx.Save(e)
	})

When the function returns an error, the transaction is rolled back and a
*TransactionError wrapping the error is returned.


Middleware

Every RPC goes through the Service interface. A Middleware wraps the service,
e.g. go.mercari.io/dataset/dsmiddleware/dslog logs every call.

	ds.AppendMiddleware(dslog.NewLogger("debug: ", logf))

Metrics and traces of the RPCs are recorded with OpenCensus, see go.mercari.io/dataset/dstrace.
*/
package dataset // import "go.mercari.io/dataset"
