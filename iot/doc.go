// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*Package iot provides the topic namespace and typed messages of devices and applications

Devices publish events and receive commands, applications receive events and device
status and send commands. All of them meet on these topics:

	iot-2/type/{device_type}/id/{device_id}/evt/{event}/fmt/{format}
	iot-2/type/{device_type}/id/{device_id}/cmd/{command}/fmt/{format}
	iot-2/type/{device_type}/id/{device_id}/mon
	iot-2/app/{app_id}/mon

The format segment names the codec which decodes the payload, see package codec.
DecodeEvent and DecodeCommand combine topic parsing and codec lookup, EncodeEvent and
EncodeCommand are their inverse. Status messages on the mon topics are always JSON.

Client identifiers follow the same naming, "d:{org}:{device_type}:{device_id}" for devices
and "a:{org}:{app_id}" for applications.
*/
package iot
