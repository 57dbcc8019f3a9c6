// Package docship provides an embeddable bulk-write client for
// Elasticsearch-compatible document stores.
//
// Operations submitted to a [Docship] instance are grouped into batches and
// sent to the cluster's _bulk endpoint over plaintext HTTP or TLS. Every
// operation receives exactly one terminal outcome, delivered to the
// configured [ResultHandler]. Writes to the same document reach the cluster,
// and their outcomes reach the handler, in submission order.
//
// # Basic Usage
//
//	cfg := docship.Config{
//	    URLs:               []string{"https://es-1:9200", "https://es-2:9200"},
//	    SecurityProtocol:   "SSL",
//	    TruststoreLocation: "/etc/docship/ca.pem",
//	    Username:           "writer",
//	    Password:           os.Getenv("ES_PASSWORD"),
//	}
//
//	d, err := docship.New(cfg, docship.WithResultHandler(handler))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := d.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer d.Stop()
//
//	err = d.Submit(ctx, docship.WriteOperation{
//	    Kind:    docship.OpIndex,
//	    Index:   "orders",
//	    DocID:   "o-1",
//	    Payload: []byte(`{"total":3}`),
//	})
//
// # Security
//
// SecurityProtocol selects PLAINTEXT (default) or SSL. With SSL the server
// chain is verified against the truststore and the hostname is matched
// against the certificate. Setting EndpointIdentificationAlgorithm to an
// empty string disables hostname matching only; chain verification always
// happens. A keystore enables client certificate authentication.
//
// Certificate trust and hostname failures are fatal: the instance moves to
// [StateFailed], every outstanding operation fails, and [Docship.Err]
// returns the cause.
//
// # Lifecycle States
//
// An instance is in one of five states: [StateStopped], [StateStarting],
// [StateRunning], [StateStopping] or [StateFailed]. Use [Docship.Status] to
// query it and [WithEventHandler] to observe transitions.
//
// # Plugins
//
//	import "github.com/bft-labs/docship/plugins/certwatcher"
//
//	d, err := docship.New(cfg, certwatcher.WithCertWatcher(certwatcher.DefaultConfig()))
package docship
