package config

// ConfigCallback collects functions to be invoked once the global
// configuration has been built.
type ConfigCallback[T any] struct {
	callbacks []func(T)
}

func (c *ConfigCallback[T]) AddCallback(f func(T)) {
	c.callbacks = append(c.callbacks, f)
}

func (c *ConfigCallback[T]) Call(config T) {
	for _, f := range c.callbacks {
		f(config)
	}
}
