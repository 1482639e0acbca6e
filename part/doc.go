// Package part provides the chiplet partitioning and technology
// co-optimization engine.
//
// # Reading Guide
//
// Start with these three files to understand the engine:
//   - hypergraph.go: the immutable CSR block-level hypergraph
//   - refiner.go: the K-way FM refinement pass driven by a CostOracle
//   - driver.go: the multi-start driver tying partitioners, the
//     floorplanner and the refiner together
//
// # Architecture
//
// The engine is layered bottom-up:
//   - hypergraph.go / chiplet.go: data model (blocks, nets, rectangles)
//   - sa.go / floorplan.go: sequence-pair simulated annealing and the
//     worker pool that turns a partition into chiplet shapes
//   - gainbucket.go / refiner.go: FM refinement with cost-model gains
//   - spectral.go / partitioners.go: initial partition generators
//   - driver.go: single-technology multi-start flow
//   - genetic.go: genetic co-search of (partition count, partition,
//     per-partition technology)
//
// Cost evaluation is delegated to a CostOracle (cost.go); the built-in
// implementation lives in the costmodel package. All randomness flows
// from a single master seed through an EngineRNG (rng.go), so runs with
// identical configuration, seed and a deterministic oracle reproduce
// bit-identical results.
package part
