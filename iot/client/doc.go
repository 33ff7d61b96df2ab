/*Package client implements device and application clients

A client is created with its transport and options, handlers are registered per
subscription. There is no global client and no callback attributes to set.

	c, err := client.New(&client.Builder{
		Options:   options,
		Transport: transport.NewMemory(),
	})
	...
	err = c.SubscribeToDeviceEvents(ctx, "sensor", "", "psutil", func(ctx context.Context, e *iot.Event) {
		cpu, _ := e.Data.Get("cpu")
		...
	})

Devices publish events and subscribe to commands, applications subscribe to events and
device status and publish commands. Messages which cannot be decoded never reach the
handlers, they go to the ErrorHandler of the Builder.
*/
package client
