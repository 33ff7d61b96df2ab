// Command recorder is a service which records the last event of every device in postgres,
// archives raw events and serves both over a REST API which also sends commands.
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// and POSTGRES_PASSWORD="docker"
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"

	"github.com/relabs-tech/iotf/core/archive"
	"github.com/relabs-tech/iotf/core/codec"
	"github.com/relabs-tech/iotf/core/config"
	"github.com/relabs-tech/iotf/core/logger"
	"github.com/relabs-tech/iotf/core/schema"
	"github.com/relabs-tech/iotf/iot/api"
	"github.com/relabs-tech/iotf/iot/client"
	"github.com/relabs-tech/iotf/iot/state"
	"github.com/relabs-tech/iotf/iot/transport/dial"
	"github.com/relabs-tech/iotf/iot/transport/sqs"
)

// Service holds the configuration for this service
type Service struct {
	Postgres         string `env:"POSTGRES,required" description:"the connection string for the Postgres DB without password"`
	PostgresPassword string `env:"POSTGRES_PASSWORD,optional" description:"password to the Postgres DB"`
	Schema           string `env:"SCHEMA,default=iotf" description:"database schema of the last event store"`
	Address          string `env:"ADDRESS,default=:3000" description:"listen address of the REST API"`
	LogLevel         string `env:"LOG_LEVEL,default=info" description:"the log level"`
	Lambda           bool   `env:"LAMBDA,default=false" description:"run as Lambda function fed by an SQS queue"`

	Org       string `env:"IOTF_ORG,default=quickstart" description:"organization"`
	AppID     string `env:"IOTF_ID,default=recorder" description:"application id"`
	AuthKey   string `env:"IOTF_AUTH_KEY" description:"api key"`
	AuthToken string `env:"IOTF_AUTH_TOKEN" description:"authentication token"`

	ArchiveDir string `env:"ARCHIVE_DIR" description:"archive raw events in this directory"`

	EventSchemaDir string `env:"EVENT_SCHEMA_DIR" description:"directory with JSON schemas, schemas in refs/ can be referenced"`
	EventSchemaID  string `env:"EVENT_SCHEMA_ID" description:"$id of the schema JSON events must satisfy, mandatory with EVENT_SCHEMA_DIR"`
	S3         archive.S3Configuration

	Transport dial.Settings
}

func (s *Service) options() config.Options {
	options := config.Options{
		Org:          s.Org,
		ID:           s.AppID,
		AuthKey:      s.AuthKey,
		AuthToken:    s.AuthToken,
		CleanSession: true,
	}
	if s.AuthKey != "" {
		options.AuthMethod = config.AuthAPIKey
	}
	return options
}

func (s *Service) archiveConfiguration() archive.Configuration {
	switch {
	case s.S3.AWSBucketName != "":
		return archive.Configuration{DriverType: archive.DriverTypeAWSS3, S3Configuration: &s.S3}
	case s.ArchiveDir != "":
		return archive.Configuration{
			DriverType:         archive.DriverTypeLocal,
			LocalConfiguration: &archive.LocalConfiguration{BasePath: s.ArchiveDir},
		}
	}
	return archive.Configuration{}
}

// codecs returns the codecs for decoding events. With an event schema JSON payloads which
// violate it are reported as invalid events and never recorded.
func (s *Service) codecs() (*codec.Registry, error) {
	if s.EventSchemaDir == "" {
		return codec.Default(), nil
	}
	v, err := schema.NewValidatorFromFS(os.DirFS(s.EventSchemaDir))
	if err != nil {
		return nil, err
	}
	if !v.HasSchema(s.EventSchemaID) {
		return nil, fmt.Errorf("%w %q in %s", schema.ErrUnknownSchema, s.EventSchemaID, s.EventSchemaDir)
	}
	return codec.NewRegistry(codec.Validating(codec.JSON{}, v.Bind(s.EventSchemaID))), nil
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}
	logger.InitLogger(logger.ParseLevel(service.LogLevel))
	rlog := logger.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn := service.Postgres
	if service.PostgresPassword != "" {
		dsn += " password=" + service.PostgresPassword
	}
	store, err := state.Open(ctx, dsn, service.Schema)
	if err != nil {
		rlog.WithError(err).Fatalln("cannot open last event store")
	}
	defer store.Close()

	a, err := archive.New(ctx, service.archiveConfiguration())
	if err != nil {
		rlog.WithError(err).Fatalln("cannot open archive")
	}

	tr, err := dial.Open(ctx, service.Transport, rlog)
	if err != nil {
		rlog.WithError(err).Fatalln("cannot open transport")
	}
	codecs, err := service.codecs()
	if err != nil {
		rlog.WithError(err).Fatalln("cannot load event schema")
	}
	r := &recorder{writer: store, archive: a, codecs: codecs}

	if service.Lambda {
		queue, ok := tr.(*sqs.Transport)
		if !ok {
			rlog.Fatalln("LAMBDA requires TRANSPORT=sqs")
		}
		queue.DisablePolling = true
		if err := r.subscribeSync(ctx, queue); err != nil {
			rlog.WithError(err).Fatalln("cannot subscribe")
		}
		lambda.Start(queue.HandleSQSEvent)
		return
	}

	app, err := client.New(&client.Builder{
		Options:   service.options(),
		Transport: tr,
		Codecs:    codecs,
		Logger:    rlog,
	})
	if err != nil {
		rlog.WithError(err).Fatalln("cannot create client")
	}
	defer app.Close(10 * time.Second)
	if err := r.subscribe(ctx, app, tr); err != nil {
		rlog.WithError(err).Fatalln("cannot subscribe")
	}

	router := mux.NewRouter()
	restAPI := api.New(&api.Builder{
		Router:    router,
		Store:     store,
		Publisher: app,
	})

	srv := &http.Server{Addr: service.Address, Handler: restAPI.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	rlog.Infoln("listen on", service.Address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		rlog.WithError(err).Errorln("server failed")
	}
}
