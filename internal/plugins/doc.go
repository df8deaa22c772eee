// Package plugins is the role-based PluginRegistry: single-slot roles
// (auth, store, history, context, model, system_prompt,
// message_processor) resolved by highest priority, and multi-slot
// roles (tool, function) ordered per hook per role's asymmetric rule.
package plugins
