package transport

// Security protocols accepted by Options.SecurityProtocol.
const (
	ProtocolPlaintext = "PLAINTEXT"
	ProtocolSSL       = "SSL"
)

// DefaultEndpointIdentificationAlgorithm enables standard hostname matching.
const DefaultEndpointIdentificationAlgorithm = "https"

// Option names, used in ConfigurationError.Option.
const (
	OptURLs               = "connection.url"
	OptUsername           = "connection.username"
	OptPassword           = "connection.password"
	OptSecurityProtocol   = "elastic.security.protocol"
	OptKeystoreLocation   = "elastic.https.ssl.keystore.location"
	OptKeystorePassword   = "elastic.https.ssl.keystore.password"
	OptKeyPassword        = "elastic.https.ssl.key.password"
	OptTruststoreLocation = "elastic.https.ssl.truststore.location"
	OptTruststorePassword = "elastic.https.ssl.truststore.password"
	OptEndpointIdentAlgo  = "elastic.https.ssl.endpoint.identification.algorithm"
)

// Options are the named connection settings a Profile is resolved from.
type Options struct {
	URLs []string

	// SecurityProtocol is PLAINTEXT (default) or SSL.
	SecurityProtocol string

	KeystoreLocation string
	KeystorePassword string
	KeyPassword      string

	TruststoreLocation string
	TruststorePassword string

	// EndpointIdentificationAlgorithm is "https" when nil. An empty string
	// disables hostname verification; the chain is still verified.
	EndpointIdentificationAlgorithm *string

	Username string
	Password string
}

// DisableHostnameVerification returns a copy of o with the endpoint
// identification algorithm set to "".
func (o Options) DisableHostnameVerification() Options {
	empty := ""
	o.EndpointIdentificationAlgorithm = &empty
	return o
}

func (o Options) algorithm() string {
	if o.EndpointIdentificationAlgorithm == nil {
		return DefaultEndpointIdentificationAlgorithm
	}
	return *o.EndpointIdentificationAlgorithm
}

func (o Options) hasTLSMaterial() bool {
	return o.KeystoreLocation != "" || o.KeystorePassword != "" || o.KeyPassword != "" ||
		o.TruststoreLocation != "" || o.TruststorePassword != ""
}
