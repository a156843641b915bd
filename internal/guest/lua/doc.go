// Package lua runs guest hooks and event consumers written in Lua.
//
// A Runtime owns one sandboxed gopher-lua state. The state is not safe for
// concurrent use, so every operation on it is queued to a single worker
// goroutine. Scripts see two global tables:
//
//	Hook.register(point, fn [, priority [, opts]])  -> handle
//	Hook.unregister(handle)                         -> bool
//	Hook.list([filter])                             -> {descriptor, ...}
//
//	Event.publish(type, data [, opts])
//	Event.subscribe(pattern_or_patterns [, config]) -> id
//	Event.receive(id [, timeout_ms])                -> event or nil
//	Event.receive_batch(id [, max [, timeout_ms]])  -> {event, ...}
//	Event.unsubscribe(id)                           -> bool
//	Event.pause(id) / Event.resume(id)              -> bool
//	Event.list_subscriptions()                      -> {info, ...}
//	Event.stats(id)                                 -> stats
//
// # Runtime
//
//	rt := lua.New(guest.NewHost("audit.lua", core.LanguageLua, exec, bus))
//	defer rt.Close()
//
//	if err := rt.DoFile(ctx, "audit.lua"); err != nil {
//	    return err
//	}
//
// Hook functions receive the context table and return nil, a string or a
// result table such as {type = "modified", data = {...}}.
//
// # Sandbox
//
// Only the base, table, string and math libraries are opened. dofile,
// loadfile, load and loadstring are removed and print goes to the logger.
// Each call runs under a deadline so a runaway script is interrupted.
package lua
