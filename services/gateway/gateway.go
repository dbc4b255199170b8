package main

import (
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/farmgate-io/farmgate/access"
	"github.com/farmgate-io/farmgate/api"
	"github.com/farmgate-io/farmgate/core/csql"
	"github.com/farmgate-io/farmgate/core/kss"
	"github.com/farmgate-io/farmgate/core/logger"
	"github.com/farmgate-io/farmgate/core/registry"
	"github.com/farmgate-io/farmgate/firmware"
	"github.com/farmgate-io/farmgate/ingest"
	"github.com/farmgate-io/farmgate/live"
	"github.com/farmgate-io/farmgate/notify"
	"github.com/farmgate-io/farmgate/pubsub"
	"github.com/farmgate-io/farmgate/store"
)

// Service holds the configuration for this service
//
// use DATABASE="farmgate.db" and MQTT_HOST="localhost"
type Service struct {
	Database string `env:"DATABASE,optional,default=farmgate.db" description:"path of the embedded sqlite store"`
	Addr     string `env:"ADDR,optional,default=:3000" description:"listen address of the HTTP API"`
	LogLevel string `env:"LOG_LEVEL,optional,default=info" description:"The level used for logger, can be debug, warning, info, error"`

	PubSubDriver string `env:"PUBSUB_DRIVER,optional,default=MQTT" description:"telemetry transport, MQTT or Kafka"`
	Topic        string `env:"TOPIC,optional,default=farmgate/telemetry" description:"the telemetry topic"`

	MQTTProtocol string `env:"MQTT_PROTOCOL,optional,default=tcp" description:"broker URL scheme, tcp or ssl"`
	MQTTHost     string `env:"MQTT_HOST,optional,default=localhost" description:"host of the MQTT broker"`
	MQTTPort     int    `env:"MQTT_PORT,optional,default=1883" description:"port of the MQTT broker"`
	MQTTUsername string `env:"MQTT_USERNAME,optional" description:"username for the MQTT broker"`
	MQTTPassword string `env:"MQTT_PASSWORD,optional" description:"password for the MQTT broker"`

	KafkaBrokers string `env:"KAFKA_BROKERS,optional" description:"the connection string for the Kafka brokers"`
	KafkaGroupID string `env:"KAFKA_GROUP_ID,optional,default=farmgate" description:"the Kafka consumer group of this gateway"`

	BlobDriver    string `env:"BLOB_DRIVER,optional,default=Local" description:"firmware binary storage, Local or AWSS3"`
	BlobDir       string `env:"BLOB_DIR,optional,default=blobs" description:"base directory of the local firmware storage"`
	AWSBucketName string `env:"AWS_BUCKET_NAME,optional" description:"S3 bucket for firmware binaries"`
	AWSRegion     string `env:"AWS_REGION,optional" description:"AWS region of the S3 bucket and the SQS queue"`
	AWSAccessID   string `env:"AWS_ACCESS_ID,optional" description:"AWS access key ID"`
	AWSAccessKey  string `env:"AWS_ACCESS_KEY,optional" description:"AWS secret access key"`

	JWTSecret   string `env:"JWT_SECRET,optional" description:"secret for login tokens; when empty the API is unprotected"`
	SQSQueueURL string `env:"SQS_QUEUE_URL,optional" description:"SQS queue for firmware event notifications; when empty notifications are disabled"`
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	logLevel, err := logrus.ParseLevel(service.LogLevel)
	if err != nil {
		panic(err)
	}
	logger.InitLogger(logLevel)
	rlog := logger.Default()

	db := csql.Open(service.Database)
	defer db.Close()

	s := store.New(db)

	blobs := newBlobDriver(service)
	var notifier firmware.Notifier
	if service.SQSQueueURL != "" {
		sqsNotifier, err := notify.NewSQS(notify.SQSConfiguration{
			QueueURL:  service.SQSQueueURL,
			AWSRegion: service.AWSRegion,
			AccessID:  service.AWSAccessID,
			AccessKey: service.AWSAccessKey,
		})
		if err != nil {
			panic(err)
		}
		notifier = sqsNotifier
	}

	wf := firmware.NewWorkflow(&firmware.Builder{
		Blobs:    blobs,
		Stable:   s.StableFirmware,
		Notifier: notifier,
	})

	router := mux.NewRouter()
	logger.AddRequestID(router)

	hub := live.NewHub()
	go hub.Run()
	router.HandleFunc("/live", hub.Handler()).Methods(http.MethodGet)

	api.NewAPI(&api.Builder{
		Store:    s,
		Firmware: wf,
		Router:   router,
	})

	if service.JWTSecret != "" {
		accessAPI := access.NewAPI(&access.Builder{
			Users:  s.Users,
			Router: router,
			Secret: service.JWTSecret,
		})
		router.Use(accessAPI.Middleware())
	} else {
		rlog.Warningln("JWT_SECRET is empty, the API is unprotected")
	}

	conn, err := pubsub.NewConn(newPubSubConfiguration(service, db))
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	dispatcher := ingest.NewDispatcher(&ingest.Builder{
		Conn:  conn,
		Topic: service.Topic,
		Store: s,
		Live:  hub,
	})
	if err := dispatcher.Subscribe(); err != nil {
		// the HTTP API stays useful without telemetry, keep running
		rlog.WithError(err).Errorln("telemetry subscription failed")
	}

	handler := handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
	)(router)

	go func() {
		rlog.Infoln("listen on", service.Addr)
		if err := http.ListenAndServe(service.Addr, handler); err != nil {
			rlog.WithError(err).Fatalln("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	rlog.Infoln("shutting down")
}

func newBlobDriver(service *Service) kss.Driver {
	switch kss.DriverType(service.BlobDriver) {
	case kss.DriverTypeLocal:
		blobs, err := kss.NewLocalFilesystem(kss.LocalConfiguration{BasePath: service.BlobDir})
		if err != nil {
			panic(err)
		}
		return blobs
	case kss.DriverTypeAWSS3:
		blobs, err := kss.NewS3(kss.S3Configuration{
			AWSBucketName: service.AWSBucketName,
			AWSRegion:     service.AWSRegion,
			AccessID:      service.AWSAccessID,
			AccessKey:     service.AWSAccessKey,
		})
		if err != nil {
			panic(err)
		}
		return blobs
	}
	panic("unknown blob driver '" + service.BlobDriver + "'")
}

func newPubSubConfiguration(service *Service, db *csql.DB) pubsub.Configuration {
	switch pubsub.DriverType(service.PubSubDriver) {
	case pubsub.DriverTypeMQTT:
		return pubsub.Configuration{
			DriverType: pubsub.DriverTypeMQTT,
			MQTTConfiguration: &pubsub.MQTTConfiguration{
				Protocol: service.MQTTProtocol,
				Host:     service.MQTTHost,
				Port:     service.MQTTPort,
				Username: service.MQTTUsername,
				Password: service.MQTTPassword,
				ClientID: gatewayClientID(db),
			},
		}
	case pubsub.DriverTypeKafka:
		return pubsub.Configuration{
			DriverType: pubsub.DriverTypeKafka,
			KafkaConfiguration: &pubsub.KafkaConfiguration{
				Brokers: strings.Split(service.KafkaBrokers, ","),
				GroupID: service.KafkaGroupID,
			},
		}
	}
	panic("unknown pub/sub driver '" + service.PubSubDriver + "'")
}

// gatewayClientID returns the persistent broker client identity of this
// gateway instance, generating one on first use.
func gatewayClientID(db *csql.DB) string {
	accessor := registry.New(db).Accessor("gateway")
	var clientID string
	if _, err := accessor.Read("client_id", &clientID); err != nil {
		panic(err)
	}
	if clientID == "" {
		clientID = "farmgate-" + uuid.New().String()
		if err := accessor.Write("client_id", clientID); err != nil {
			panic(err)
		}
	}
	return clientID
}
