// Package mqtt connects the AV bridge to the Gray Logic MQTT bus.
//
// It wraps paho.mqtt.golang with:
//   - auto-reconnect with backoff and subscription restore
//   - a Last Will registered at connect time, so the broker announces the
//     bridge as offline if the process dies
//   - publish/subscribe validation (topic, QoS, payload size)
//   - panic recovery around message handlers
//   - topic builders for the flat graylogic/{category}/{protocol}/{id} scheme
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, &mqtt.Message{
//	    Topic:    mqtt.Topics{}.BridgeHealth("av"),
//	    Payload:  lwt,
//	    QoS:      1,
//	    Retained: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommands("av"), 1,
//	    func(topic string, payload []byte) {
//	        // handle command
//	    })
package mqtt
