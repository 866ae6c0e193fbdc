// Package plugin connects the notifier to its host. It subscribes to notice
// events, filters them by the configured rules and hands the rest to the
// dispatcher. At start-up it reconciles the custom template file with the
// stored configuration and applies the one-shot template and test actions.
package plugin
