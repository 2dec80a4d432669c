// Package dev implements kernel devices: the null sink, the serial
// console, and the framebuffer. Mappable devices double as region
// backings so their memory can be mapped straight into address spaces.
package dev
