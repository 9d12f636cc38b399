/*
Package rdns implements a DNS resolution engine for applications that can not
rely on a platform resolver and need explicit control over trust, fallback
behavior and server selection. Queries can be answered by delegating to
recursive upstream servers, by walking the DNS delegation hierarchy directly
(iterative resolution), or by a combination of both. DNSSEC authentication
chains can be validated locally when an upstream can not be trusted to do so.

There are three fundamental building blocks in this library.

# Dispatcher

A Dispatcher assembles an ordered list of candidate recursive servers from
platform discovery mechanisms and hardcoded fallbacks, then tries them one at
a time until one returns a usable response. Servers that respond without the
"recursion available" flag are blacklisted for the life of the process.

# Client

A Client resolves queries in one of three modes: purely recursive (through a
Dispatcher), purely iterative (walking the hierarchy from the root servers,
bounded by a RecursionGuard), or recursive with iterative fallback.

# ReliableResolver

A ReliableResolver combines two independently configured clients to return
DNSSEC authenticated answers whenever cryptographically possible: the answer
of a recursive upstream is only trusted if it proves validation, otherwise
the hierarchy is walked and signatures are validated locally.
*/
package rdns
