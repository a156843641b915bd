// Package topic provides event type validation and subscription pattern
// matching for the event bus.
//
// # Event Types
//
// Event types are dot-separated hierarchies:
//
//	agent.started
//	agent.lifecycle.started
//	tool.web_search.failed
//
// # Patterns
//
// Subscription patterns add wildcards:
//
//	agent.*               agent.started, agent.error (not agent.lifecycle.started)
//	agent.**              agent, agent.started, agent.lifecycle.started
//	tool.web_?earch.*     tool.web_search.failed
//	tool.[a-m]*.failed    tool.calc.failed (not tool.zip.failed)
//	{agent,tool}.error    agent.error, tool.error
//	**                    everything
//
// # Matching
//
// Matcher indexes compiled patterns by subscription id. Literal patterns are
// answered from a hash map; wildcard patterns are walked in a trie keyed by
// segment. Match results are cached per event type.
//
//	m := topic.NewMatcher(topic.DefaultCacheSize)
//	m.Add("sub-1", topic.MustCompile("agent.*"))
//	m.Add("sub-2", topic.MustCompile("agent.started"))
//
//	ids := m.Match("agent.started") // [sub-1 sub-2]
package topic
