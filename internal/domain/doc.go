// Package domain contains the core business entities, value objects, and
// domain logic of the application: quiz questions and the durable tasks that
// run AI-assisted work on them. It is independent of any specific
// infrastructure or delivery mechanism.
package domain
