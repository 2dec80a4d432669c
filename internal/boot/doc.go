// Package boot loads the machine profile the kernel boots with.
//
// A profile describes the hardware-equivalent configuration: physical
// memory size, framebuffer geometry, serial console options, and FIFO
// channels created before the first context runs. Profiles are plain
// files in YAML, TOML, or JSON, chosen by extension, so machine
// definitions can live next to deployment manifests in whichever
// format the surrounding tooling prefers.
package boot
