package mqtt

import "fmt"

// Subscribe routes messages on topic (wildcards allowed) to handler and
// remembers the route so it survives reconnects. A failed subscribe is
// forgotten again.
func (c *Client) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.routesMu.Lock()
	if c.routes == nil {
		c.routes = make(map[string]route)
	}
	c.routes[topic] = route{qos: qos, handler: handler}
	c.routesMu.Unlock()

	err := await(c.paho.Subscribe(topic, qos, c.deliver(handler)), defaultOperationTimeout, ErrSubscribeFailed)
	if err != nil {
		c.forget(topic)
	}
	return err
}

// Unsubscribe drops the route for topic. In-flight messages may still arrive.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.forget(topic)
	return await(c.paho.Unsubscribe(topic), defaultOperationTimeout, ErrUnsubscribeFailed)
}

// HasSubscription reports whether exactly topic has a route.
func (c *Client) HasSubscription(topic string) bool {
	c.routesMu.RLock()
	defer c.routesMu.RUnlock()
	_, ok := c.routes[topic]
	return ok
}

func (c *Client) forget(topic string) {
	c.routesMu.Lock()
	delete(c.routes, topic)
	c.routesMu.Unlock()
}
