// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package archive stores raw messages in a local directory or in AWS S3
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/iotf/core/codec"
	"github.com/relabs-tech/iotf/core/logger"
	"github.com/relabs-tech/iotf/iot/transport"
)

// Archiver stores raw messages
type Archiver interface {
	// Put stores msg and returns its key
	Put(ctx context.Context, msg codec.RawMessage) (key string, err error)
}

// DriverType represents the different type of archive drivers
type DriverType string

// DriverTypeLocal is the local filesystem archive
const DriverTypeLocal DriverType = "Local"

// DriverTypeAWSS3 is the AWS S3 archive
const DriverTypeAWSS3 DriverType = "AWSS3"

// None is used when messages are not archived
const None DriverType = ""

// Configuration selects and configures an archive driver
type Configuration struct {
	DriverType         DriverType
	LocalConfiguration *LocalConfiguration
	S3Configuration    *S3Configuration
}

// New returns the archiver selected by c, or nil for None
func New(ctx context.Context, c Configuration) (Archiver, error) {
	switch c.DriverType {
	case None:
		return nil, nil
	case DriverTypeLocal:
		if c.LocalConfiguration == nil {
			return nil, fmt.Errorf("missing local configuration")
		}
		l, err := NewLocal(c.LocalConfiguration.BasePath)
		if err != nil {
			return nil, err
		}
		return l, nil
	case DriverTypeAWSS3:
		if c.S3Configuration == nil {
			return nil, fmt.Errorf("missing S3 configuration")
		}
		s, err := NewS3(ctx, *c.S3Configuration)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown archive driver %q", c.DriverType)
}

// Key returns the key of a message received at t, or now if t is zero. Keys of one
// topic sort by time.
func Key(prefix, topic string, t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return fmt.Sprintf("%s%s/%019d-%s.json", prefix, strings.Trim(topic, "/"), t.UnixNano(), uuid.New().String())
}

// Handler returns a transport handler which archives every message before passing it
// to next. next may be nil. Messages which cannot be archived are still passed on.
func Handler(a Archiver, next transport.Handler) transport.Handler {
	return func(ctx context.Context, msg codec.RawMessage) {
		if key, err := a.Put(ctx, msg); err != nil {
			logger.FromContext(ctx).WithError(err).Errorln("cannot archive message on", msg.Topic)
		} else {
			logger.FromContext(ctx).Debugln("archived", key)
		}
		if next != nil {
			next(ctx, msg)
		}
	}
}
