package schema_test

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/relabs-tech/iotf/core/codec"
	"github.com/relabs-tech/iotf/core/schema"
)

const (
	ref1 = `{ "type" : "number" ,
		      "$id" : "http://some_host.com/percent.json",
		      "minimum": 0, "maximum": 100 }`

	psutil = `
	{ "$id" : "http://some_host.com/psutil.json",
	  "type": "object",
	  "required": ["cpu", "mem"],
	  "properties": {
		"cpu": { "$ref" : "http://some_host.com/percent.json" },
		"mem": { "$ref" : "http://some_host.com/percent.json" },
		"network": {
			"type": "object",
			"properties": {
				"up": { "type": "number" },
				"down": { "type": "number" }
			}
		}
	  }
	}`
	greeting = `
	{ "$id" : "http://some_host.com/greeting.json",
	  "type": "object",
	  "required": ["hello"],
	  "properties": { "hello": { "type": "string", "minLength": 3 } }
	}`

	psutilID   = "http://some_host.com/psutil.json"
	greetingID = "http://some_host.com/greeting.json"
)

func TestValidateBytes(t *testing.T) {
	v, err := schema.NewValidator([]string{psutil, greeting}, []string{ref1})
	if err != nil {
		t.Fatalf("No error expected when creating validator, got %v", err)
	}

	valid := `{"cpu": 12.5, "mem": 40, "network": {"up": 1.2, "down": 0}}`
	if err := v.ValidateBytes([]byte(valid), psutilID); err != nil {
		t.Fatalf("%s is expected to be valid with schema %s. Reported error was: %v", valid, psutilID, err)
	}

	outOfRange := `{"cpu": 120, "mem": 40}`
	if err := v.ValidateBytes([]byte(outOfRange), psutilID); err == nil {
		t.Fatalf("%s is expected to be invalid with schema %s", outOfRange, psutilID)
	}

	missing := `{"cpu": 12}`
	if err := v.ValidateBytes([]byte(missing), psutilID); err == nil {
		t.Fatalf("%s is expected to be invalid with schema %s", missing, psutilID)
	}

	if err := v.ValidateBytes([]byte(`{"hello": "world"}`), greetingID); err != nil {
		t.Fatal(err)
	}
	if err := v.ValidateBytes([]byte(`{"hello": "yo"}`), greetingID); err == nil {
		t.Fatal("short greeting is expected to be invalid")
	}
}

func TestValidateValue(t *testing.T) {
	v, err := schema.NewValidator([]string{greeting}, nil)
	if err != nil {
		t.Fatal(err)
	}
	good := codec.Object(map[string]codec.Value{"hello": codec.String("world"), "x": codec.Int(1)})
	if err := v.ValidateValue(good, greetingID); err != nil {
		t.Fatal(err)
	}
	bad := codec.Object(map[string]codec.Value{"hello": codec.Int(1)})
	if err := v.ValidateValue(bad, greetingID); err == nil {
		t.Fatal("expected error for non-string greeting")
	}
}

func TestUnknownSchema(t *testing.T) {
	v, err := schema.NewValidator([]string{greeting}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if v.HasSchema("http://some_host.com/unknownschema.json") {
		t.Fatal("unknown schema is not expected to be available")
	}
	err = v.ValidateBytes([]byte(`{}`), "http://some_host.com/unknownschema.json")
	if !errors.Is(err, schema.ErrUnknownSchema) {
		t.Fatalf("expected ErrUnknownSchema, got %v", err)
	}
}

func TestSchemaWithoutID(t *testing.T) {
	if _, err := schema.NewValidator([]string{`{"type": "object"}`}, nil); err == nil {
		t.Fatal("expected error for schema without $id")
	}
}

func TestValidatorFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"psutil.json":       {Data: []byte(psutil)},
		"greeting.json":     {Data: []byte(greeting)},
		"README.md":         {Data: []byte("not a schema")},
		"refs/percent.json": {Data: []byte(ref1)},
	}
	v, err := schema.NewValidatorFromFS(fsys)
	if err != nil {
		t.Fatal(err)
	}
	if !v.HasSchema(psutilID) || !v.HasSchema(greetingID) {
		t.Fatal("expected both top level schemas")
	}
}

func TestBoundValidatorWithCodec(t *testing.T) {
	v, err := schema.NewValidator([]string{greeting}, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := codec.Validating(codec.JSON{}, v.Bind(greetingID))

	if _, err := c.Decode(codec.RawMessage{Payload: []byte(`{"hello": "world"}`)}); err != nil {
		t.Fatal(err)
	}
	_, err = c.Decode(codec.RawMessage{Payload: []byte(`{"hello": 42}`)})
	if !errors.Is(err, codec.ErrInvalidEvent) {
		t.Fatalf("expected invalid event, got %v", err)
	}
}

func TestBindUnknownSchemaPanics(t *testing.T) {
	v, err := schema.NewValidator(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	v.Bind("http://some_host.com/nope.json")
}
