/*Package mqtt provides an embedded MQTT broker which doubles as transport

Devices and applications connect with any MQTT client. The broker expects client ids of
the form

	d:{org}:{device_type}:{device_id}
	a:{org}:{app_id}

and publishes a status message with Action "Connect" on

	iot-2/type/{device_type}/id/{device_id}/mon
	iot-2/app/{app_id}/mon

whenever such a client connects.

With EnforcePolicy a device may only publish its own events and subscribe to its own
commands, see iot.ClientID.

Every message published by an MQTT client is also handed to the local subscribers of the
Broker. Payloads are passed on unchecked; malformed payloads are reported by the codec of
whoever decodes them. Local publishes reach MQTT subscribers with quality level 1.
*/
package mqtt
