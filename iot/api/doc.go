/*Package api is the REST interface to device events and commands

	GET /devices/{device_type}/{device_id}/events
	GET /devices/{device_type}/{device_id}/events/{event}
	PUT /devices/{device_type}/{device_id}/commands/{command}

The event routes return the last recorded events of a device as

	{
	 "device_type": "sensor",
	 "device_id": "d1",
	 "event": "psutil",
	 "format": "json",
	 "data": {"cpu": 12.5},
	 "received_at": "2021-03-01T12:00:00Z"
	}

The command route publishes the JSON request body as command with format json and
returns 204 No Content. Bodies which are not valid JSON are rejected with 400.
*/
package api
